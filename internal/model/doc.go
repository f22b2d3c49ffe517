// Package model defines the core data structures used throughout
// the danmu downloader.
//
// # Task
//
// Task is one unit of work read from a task file. Its resolution mode is
// derived from which fields are set:
//
//	task := model.Task{Index: 1, FileName: "Show S01E02.mkv"}
//	fmt.Println(task.Mode()) // fileName
//
// # Report
//
// Report collects per-task results of a run. Workers call Add concurrently;
// Finish sorts items by task index before the report is persisted:
//
//	report.Add(model.ItemResult{Index: 2, Status: model.ItemFailed, Error: "HTTP 404"})
//	report.Finish(false, time.Now())
//	os.Exit(report.ExitCode())
//
// Exit codes are 0 when every task succeeded, 2 when any task failed and 130
// when the run was cancelled.
package model
