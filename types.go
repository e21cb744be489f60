// Package novaloop is the top-level facade: schema parsing, record buffers,
// table readers and writers, and the on-disk table database.
package novaloop

import (
	"github.com/tuannm99/novaloop/internal/engine"
	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/looper"
	"github.com/tuannm99/novaloop/internal/record"
)

type (
	Database = engine.Database
	Table    = heap.Table

	Variable = record.Variable
	Scalar   = record.Scalar
	Vector   = record.Vector
	Schema   = record.Schema
	Column   = record.Column
	Buffer   = record.Buffer
	Layout   = record.Layout

	Reader       = looper.Reader
	Writer       = looper.Writer
	RowFiller    = looper.RowFiller
	EventRange   = looper.EventRange
	SplitOptions = looper.SplitOptions
)
