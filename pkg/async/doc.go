// Package async provides safe concurrent execution primitives.
//
// Gather is the structured fan-out used by report aggregation: every task
// runs to completion, failures and panics stay local to their task, and the
// caller receives one error slot per task.
//
//	errs := async.Gather(ctx, 8, 5*time.Minute, []async.Task{
//		{Name: "accountThingCount", Run: fetchAccounts},
//		{Name: "traffic.publishIn", Run: fetchPublishIn},
//	})
//
// SafeGo runs a fire-and-forget background task with panic recovery and
// logging.
package async
