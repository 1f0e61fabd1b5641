// Package client provides an HTTP client for the printgate gateway API.
//
// It is used by printgate-client and covers every current route: listing
// printers, registering a network printer, uploading a PDF, polling a job
// and following the /events WebSocket.
//
// # Usage Example
//
//	c := client.NewClient("http://printgate.local:3000")
//	c.SetAPIKey(os.Getenv("PRINTGATE_API_KEY"))
//
//	printers, err := c.Printers(ctx)
//	if err != nil {
//	    fmt.Println(client.GetTroubleshootingHint(err))
//	}
//
//	res, err := c.Print(ctx, client.PrintRequest{Printer: "Office", Path: "report.pdf"})
//
// # Errors
//
// Every method returns a *ClientError. Its Type distinguishes transport
// failures (timeout, refused, DNS) from gateway responses (auth, not found,
// rate limited, validation, other HTTP). GET requests are retried with
// exponential backoff on retryable errors; uploads and registrations are
// sent once.
package client
