/*
Package streaming sends converted files to clients with protection against
slow or vanished readers.

ServeDownload sets the attachment headers and a Content-Length, then
copies the file in chunks. Before each chunk it arms a connection write
deadline through http.ResponseController, and after each chunk it
flushes. It stops as soon as the request context ends and reports
whether the client received every byte, which is the signal the caller
uses to schedule deletion.

	res, err := streaming.ServeDownload(r.Context(), w, file, streaming.Download{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Size:        info.Size(),
	}, streaming.DefaultConfig())
	if err == nil && res.Complete {
		// safe to schedule deletion
	}
*/
package streaming
