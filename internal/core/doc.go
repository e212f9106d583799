// Package core provides the business logic for company import and export.
//
// The package holds all domain logic independent of any transport. The web
// server and the crmctl CLI both drive it through [Service].
//
// # Import
//
// An import is a reconciliation of CSV rows against a [company.Store]:
//
//  1. [DecodeCSV] strips a BOM and parses the whole file. A broken file,
//     including one that is not valid UTF-8, fails as a whole with [ErrMalformedInput].
//  2. [Normalize] trims each row and resolves it into a [Candidate]. A row
//     without a name becomes a [RowError].
//  3. [Reconciler] looks the company up by name, then creates it or applies
//     a sparse update. Row numbers start at 2, the header being row 1.
//
// Rows are processed sequentially. Every per-row failure, including a
// duplicate-name race with another writer, is recorded in [Summary.Errors]
// and the batch continues. Concurrent imports are bounded by [ImportLimiter]
// but not coordinated: the last writer to reach the store wins.
//
// # Milestones on import
//
// An unknown milestone is replaced by the default when a company is created
// and ignored when an existing company is updated.
//
// # Export
//
// [Exporter] writes a metadata row, a header row and the matching companies
// ordered by industry and name, with a blank row between industry groups.
// Companies without an industry sort under "No Industry Specified".
// Filters are validated with [ParseExportFilter] before any scan.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - DB001-DB006: store errors (duplicate name, not found, connection)
//   - VAL000-VAL006: validation errors
//   - FLT001: invalid export filter
//   - FILE001-FILE005: file errors (size, format, empty)
//   - IMP002-IMP005: import errors (busy, cancelled, timeout)
package core
