package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNilCollection = errors.New("mongo collection is nil")

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
// Embedded documents decode as bson.M so audit snapshots read back as
// plain JSON objects.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// LedgerStore persists the ledger: one keyed collection per pool plus the
// append-only assignment and audit collections.
type LedgerStore struct {
	Drivers     LedgerCollection
	Vehicles    LedgerCollection
	Sims        LedgerCollection
	Assets      LedgerCollection
	Clients     LedgerCollection
	Assignments LedgerCollection
	AuditLogs   LedgerCollection
}

// NewLedgerStore binds the ledger collections of a database.
func NewLedgerStore(database *mongo.Database) *LedgerStore {
	return &LedgerStore{
		Drivers:     database.Collection(DriversCollection),
		Vehicles:    database.Collection(VehiclesCollection),
		Sims:        database.Collection(SimsCollection),
		Assets:      database.Collection(AssetsCollection),
		Clients:     database.Collection(ClientsCollection),
		Assignments: database.Collection(AssignmentsCollection),
		AuditLogs:   database.Collection(AuditLogsCollection),
	}
}

// EnsureIndexes creates the secondary indexes the audit and history
// queries use.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		AuditLogsCollection: {
			{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}}},
			{Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		AssignmentsCollection: {
			{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, indexes := range specs {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// Apply writes one committed change set. Every write is an upsert or a
// delete keyed by _id, so replaying a change set is harmless.
func (s *LedgerStore) Apply(ctx context.Context, cs ledger.ChangeSet) error {
	writes := map[string][]mongo.WriteModel{}
	add := func(coll, id string, doc interface{}) {
		writes[coll] = append(writes[coll], mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	for _, d := range cs.Drivers {
		add(DriversCollection, d.ID, d)
	}
	for _, v := range cs.Vehicles {
		add(VehiclesCollection, v.ID, v)
	}
	for _, sim := range cs.Sims {
		add(SimsCollection, sim.ID, sim)
	}
	for _, a := range cs.Assets {
		add(AssetsCollection, a.ID, a)
	}
	for _, c := range cs.Clients {
		add(ClientsCollection, c.ID, c)
	}
	for _, del := range cs.Deleted {
		coll := entityCollection(del.EntityType)
		writes[coll] = append(writes[coll], mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": del.ID}))
	}
	for _, a := range cs.Assignments {
		add(AssignmentsCollection, a.ID, a)
	}
	for _, e := range cs.Audit {
		add(AuditLogsCollection, e.ID, e)
	}

	// pools first, history last
	for _, name := range []string{
		DriversCollection, VehiclesCollection, SimsCollection, AssetsCollection, ClientsCollection,
		AssignmentsCollection, AuditLogsCollection,
	} {
		batch := writes[name]
		if len(batch) == 0 {
			continue
		}
		coll := s.collection(name)
		if coll == nil {
			return fmt.Errorf("%s: %w", name, errNilCollection)
		}
		if _, err := coll.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the whole ledger back into a snapshot.
func (s *LedgerStore) Load(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	byID := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	loads := []struct {
		coll LedgerCollection
		name string
		opts *options.FindOptions
		out  interface{}
	}{
		{s.Drivers, DriversCollection, byID, &snap.Drivers},
		{s.Vehicles, VehiclesCollection, byID, &snap.Vehicles},
		{s.Sims, SimsCollection, byID, &snap.Sims},
		{s.Assets, AssetsCollection, byID, &snap.Assets},
		{s.Clients, ClientsCollection, byID, &snap.Clients},
		{s.Assignments, AssignmentsCollection, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}), &snap.Assignments},
		{s.AuditLogs, AuditLogsCollection, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}), &snap.Audit},
	}
	for _, l := range loads {
		if l.coll == nil {
			return ledger.Snapshot{}, fmt.Errorf("%s: %w", l.name, errNilCollection)
		}
		cursor, err := l.coll.Find(ctx, bson.M{}, l.opts)
		if err != nil {
			return ledger.Snapshot{}, fmt.Errorf("load %s: %w", l.name, err)
		}
		if err := cursor.All(ctx, l.out); err != nil {
			return ledger.Snapshot{}, fmt.Errorf("decode %s: %w", l.name, err)
		}
	}
	log.WithFields(log.Fields{
		"drivers":     len(snap.Drivers),
		"vehicles":    len(snap.Vehicles),
		"sims":        len(snap.Sims),
		"assets":      len(snap.Assets),
		"clients":     len(snap.Clients),
		"assignments": len(snap.Assignments),
		"audit_logs":  len(snap.Audit),
	}).Info("Loaded ledger from MongoDB")
	return snap, nil
}

func (s *LedgerStore) collection(name string) LedgerCollection {
	switch name {
	case DriversCollection:
		return s.Drivers
	case VehiclesCollection:
		return s.Vehicles
	case SimsCollection:
		return s.Sims
	case AssetsCollection:
		return s.Assets
	case ClientsCollection:
		return s.Clients
	case AssignmentsCollection:
		return s.Assignments
	case AuditLogsCollection:
		return s.AuditLogs
	}
	return nil
}

func entityCollection(entity string) string {
	switch entity {
	case models.EntityDriver:
		return DriversCollection
	case models.EntityVehicle:
		return VehiclesCollection
	case models.EntitySim:
		return SimsCollection
	case models.EntityAsset:
		return AssetsCollection
	default:
		return ClientsCollection
	}
}
