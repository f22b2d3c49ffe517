// Package download runs a list of comment download tasks.
//
// # Manager
//
// The Manager coordinates a run:
//
//  1. Create the output directory
//  2. Start a fixed pool of workers, each with its own connection session
//  3. Hand out tasks through a shared cursor, spacing their starts
//  4. Resolve, fetch, name and write each task's comment file
//  5. Write download-report.json sorted by task index
//
// # Basic Usage
//
//	manager := download.NewManager(api, download.Options{
//	    APIRoot:     root,
//	    OutputDir:   "downloads",
//	    Concurrency: 6,
//	    Throttle:    120 * time.Millisecond,
//	}, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	report, err := manager.Run(ctx, tasks)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.Exit(report.ExitCode())
//
// # Concurrency
//
// Workers never process the same task twice. Task start order is not
// guaranteed, but the report is. Failures are isolated per task.
//
// # Cancellation
//
// Cancelling the context stops workers from claiming new tasks. Requests
// already on the wire are not aborted.
package download
