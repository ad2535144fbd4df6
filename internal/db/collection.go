package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names in the ledger database.
const (
	DriversCollection       = "drivers"
	VehiclesCollection      = "vehicles"
	SimsCollection          = "sims"
	AssetsCollection        = "assets"
	ClientsCollection       = "clients"
	AssignmentsCollection   = "assignments"
	AuditLogsCollection     = "audit_logs"
	UsersCollection         = "users"
	UserBootstrapCollection = "user_bootstrap"
)

// LedgerCollection is the subset of *mongo.Collection the ledger journal
// and loader use.
type LedgerCollection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}
