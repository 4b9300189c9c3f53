// Package core provides the upload pipeline for graph data.
//
// This package holds all domain logic independent of transport and storage
// backend. It is used by the HTTP handlers, the multinetctl CLI and tests
// without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Formats: Registered via the registry, each format turns decoded text
//     into a [Plan] of tables and records, or a [ValidationFailed] listing
//     every defect found.
//   - Service: The entry point for uploads, workspace creation, table
//     listing and download.
//   - Store: Reached only through the internal/store interfaces, so the
//     same pipeline runs on ArangoDB, PostgreSQL or in memory.
//
// # Format Registry
//
// Formats are registered at init time using [Register]. Each
// [FormatDefinition] contains everything needed to process one upload type:
//
//	core.Register(core.FormatDefinition{
//	    Info: core.FormatInfo{
//	        Key:         "csv",
//	        Label:       "CSV table",
//	        ContentType: "text/csv",
//	        Tables:      func(name string) []string { return []string{name} },
//	    },
//	    Build: buildCSV,
//	})
//
// The concrete formats live in internal/core/formats and are linked in with
// a blank import.
//
// # Upload Flow
//
//  1. Client calls [Service.Upload] with the raw body
//  2. An upload slot is taken from the [UploadLimiter]
//  3. [DecodeData] strips a UTF-8 BOM and rejects anything that is not UTF-8
//  4. The format's Build validates and transforms; nothing is written on failure
//  5. Missing tables are created with the kind chosen by [Classify]
//  6. Every table is inserted inside one storage transaction
//
// [Service.Validate] runs steps 3 and 4 only, for dry runs.
//
// # Error Handling
//
// Validation defects are returned as [*ValidationFailed] and rendered to
// clients verbatim. Other errors are mapped to user-friendly messages using
// [MapError], each with a support code:
//
//   - VAL001-VAL002: Validation and parameter errors
//   - FILE001-FILE004: Body size, parse and encoding errors
//   - DB001-DB007: Storage errors
//   - WS001-WS002, TBL001-TBL003: Workspace and table errors
//   - UPL002-UPL006: Upload capacity, cancellation and format errors
//   - AUTH001-AUTH003, RATE001: Access errors
package core
