// Package core provides the business logic for CSV import operations.
//
// This package is the heart of the CSV importer, containing all domain logic
// independent of any transport layer. It is driven by the HTTP API, the
// command line and tests without modification.
//
// # Table Registry
//
// Destinations are registered at init time using [Register]. Each
// [TableDefinition] describes the target table and how each CSV field becomes
// a typed column value:
//
//	core.Register(core.TableDefinition{
//	    Info: core.TableInfo{Key: "customers", Group: "crm", Label: "Customers"},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "Customer ID", Required: true, Type: core.FieldText},
//	        {Name: "Balance", Type: core.FieldNumeric},
//	    },
//	})
//
// # Import Runs
//
// [Importer.Import] loads one source into one destination inside a single
// store transaction. Rows are mapped one at a time; rows that fail to map are
// recorded in the result and skipped. Mapped rows accumulate in a [Batch] and
// are persisted whenever the batch reaches the commit threshold, but nothing
// is visible until the final commit. Any persistence failure rolls back the
// whole run.
//
// With [ActionReplace] the destination is cleared first, in its own
// transaction.
//
//  1. The source is decoded to UTF-8 ([DecodeReader])
//  2. The [Mapper] turns each row into a [Record]
//  3. Full batches are persisted through [Tx.Persist]
//  4. The remainder is persisted and the transaction committed
//
// Progress messages go to a [ProgressReporter]. [Service] runs imports in the
// background, limits concurrency, and keeps one run per destination.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB009: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL006: Validation errors (formats, missing columns)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - IMP001-IMP005: Import errors (cancelled, busy, not found)
package core
