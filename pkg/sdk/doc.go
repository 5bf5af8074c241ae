// Package ragd is the Go client for the ragd HTTP API.
//
// Basic usage:
//
//	client := ragd.New("http://localhost:8080", ragd.WithAPIKey("sk-..."))
//	res, err := client.Retrieve(ctx, ragd.RetrieveRequest{
//		Query:   "how does fusion ranking work?",
//		FileIDs: []string{"file-1", "file-2"},
//	})
//
// Streaming answers deliver events through a callback:
//
//	err := client.AnswerStream(ctx, req, func(e ragd.Event) error {
//		if e.Kind == ragd.EventMessageDelta {
//			fmt.Print(e.Delta)
//		}
//		return nil
//	})
package ragd
