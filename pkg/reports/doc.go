// Package reports archives failure reports produced by a scope.
//
// A Report holds the error, a snapshot of every slice, and the explanation
// that was shown for it. Sinks store reports on local disk or in S3:
//
//	sink, err := reports.NewDiskSink(".srasm/reports", 1<<20)
//
//	client := reports.NewS3Client(reports.S3Config{Region: "eu-west-1"})
//	sink := reports.NewS3Sink(client, "bucket", "reports/", 1<<20)
//
// Report ids are UUIDs; Load rejects anything else.
package reports
