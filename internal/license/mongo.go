package license

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	licensesCollection    = "licenses"
	validationsCollection = "license_validations"
)

// LicenseDocument is the persisted variant of a license. It carries
// the activation state flipped off when validation observes expiry;
// the cryptographic contract lives entirely in the encoded blob.
type LicenseDocument struct {
	EmployeeID          string    `bson:"_id" json:"employee_id"`
	Name                string    `bson:"name" json:"name"`
	Email               string    `bson:"email" json:"email"`
	Department          string    `bson:"department" json:"department"`
	IssuedAt            time.Time `bson:"issued_at" json:"issued_at"`
	ExpiresAt           time.Time `bson:"expires_at" json:"expires_at"`
	HardwareFingerprint string    `bson:"hardware_fingerprint" json:"hardware_fingerprint"`
	IsActive            bool      `bson:"is_active" json:"is_active"`
}

// MongoAuditStore persists license documents and validation history
// to MongoDB.
type MongoAuditStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoAuditStore creates an audit store over the given database
func NewMongoAuditStore(db *mongo.Database) *MongoAuditStore {
	return &MongoAuditStore{db: db}
}

// Connect dials MongoDB and returns an audit store bound to the named
// database.
func Connect(ctx context.Context, uri, database string) (*MongoAuditStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	store := NewMongoAuditStore(client.Database(database))
	store.client = client
	return store, nil
}

// Close disconnects the underlying client when this store owns it
func (s *MongoAuditStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Record upserts the persisted document for an issued license
func (s *MongoAuditStore) Record(ctx context.Context, lic *License) error {
	doc := LicenseDocument{
		EmployeeID:          lic.EmployeeID,
		Name:                lic.Name,
		Email:               lic.Email,
		Department:          lic.Department,
		IssuedAt:            lic.IssuedAt,
		ExpiresAt:           lic.ExpiresAt,
		HardwareFingerprint: lic.HardwareFingerprint,
		IsActive:            true,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(licensesCollection).
		ReplaceOne(ctx, bson.M{"_id": lic.EmployeeID}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to record license document: %w", err)
	}
	return nil
}

// Append stores one validation-history entry
func (s *MongoAuditStore) Append(ctx context.Context, record ValidationRecord) error {
	_, err := s.db.Collection(validationsCollection).InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to append validation record: %w", err)
	}
	return nil
}

// Deactivate flips is_active off for the employee's license document
func (s *MongoAuditStore) Deactivate(ctx context.Context, employeeID string) error {
	_, err := s.db.Collection(licensesCollection).UpdateOne(ctx,
		bson.M{"_id": employeeID},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate license document: %w", err)
	}
	return nil
}

// History returns the most recent validation records, newest first
func (s *MongoAuditStore) History(ctx context.Context, limit int64) ([]ValidationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}

	cursor, err := s.db.Collection(validationsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query validation history: %w", err)
	}
	defer cursor.Close(ctx)

	var records []ValidationRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode validation history: %w", err)
	}
	return records, nil
}
