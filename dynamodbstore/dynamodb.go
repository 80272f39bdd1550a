package dynamodbstore

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/jjeffery/errors"
	"github.com/sirupsen/logrus"

	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

const (
	// DefaultTableName is used when no table name is configured.
	DefaultTableName = "sessions"

	// DefaultRegion is used when no client and no region are configured.
	DefaultRegion = "us-east-1"

	// DefaultReadCapacityUnits and DefaultWriteCapacityUnits are the
	// provisioned capacity used when the store creates its own table.
	DefaultReadCapacityUnits  = 5
	DefaultWriteCapacityUnits = 5
)

// record is the item layout in the DynamoDB table.
type record struct {
	ID      string `dynamodbav:"id"`
	Expires int64  `dynamodbav:"expires"`
	Type    string `dynamodbav:"type,omitempty"`
	Sess    string `dynamodbav:"sess,omitempty"`
}

// Config contains optional settings for a DB. The zero value is valid.
type Config struct {
	// Client is an already-constructed DynamoDB client. When nil, a
	// client is constructed from the AWS fields below.
	Client *dynamodb.DynamoDB

	// Table is the DynamoDB table name. Defaults to DefaultTableName.
	Table string

	// Region is the AWS region used when constructing a client.
	// Defaults to DefaultRegion.
	Region string

	// Endpoint overrides the DynamoDB endpoint, eg for DynamoDB Local.
	Endpoint string

	// CredentialsFile is the path of a shared AWS credentials file used
	// when constructing a client. When empty, the SDK's default
	// credential chain applies. CredentialsProfile selects the profile
	// within the file.
	CredentialsFile    string
	CredentialsProfile string

	// ReadCapacityUnits and WriteCapacityUnits are the provisioned
	// capacity used if the store has to create the table.
	ReadCapacityUnits  int64
	WriteCapacityUnits int64

	// SkipTableCreation disables the background ensure-table bootstrap.
	SkipTableCreation bool

	// Logger receives the outcome of the background bootstrap.
	// Defaults to the standard logger.
	Logger logrus.FieldLogger
}

// DB provides storage for sessions using an AWS DynamoDB table.
// It implements the sessionstore.DB interface.
//
// The structure of the DynamoDB table is described in the package
// comment.
type DB struct {
	dynamodb      *dynamodb.DynamoDB
	tableName     string
	readCapacity  int64
	writeCapacity int64
	logger        logrus.FieldLogger
}

// New creates a DynamoDB DB from config. Unless disabled, it checks in
// the background that the configured table exists, creating it if
// necessary; the outcome of that check is logged, never returned, and
// construction does not wait for it.
func New(config Config) (*DB, error) {
	client := config.Client
	if client == nil {
		awsConfig := aws.NewConfig().WithRegion(DefaultRegion)
		if config.Region != "" {
			awsConfig = awsConfig.WithRegion(config.Region)
		}
		if config.Endpoint != "" {
			awsConfig = awsConfig.WithEndpoint(config.Endpoint)
		}
		if config.CredentialsFile != "" {
			awsConfig = awsConfig.WithCredentials(
				credentials.NewSharedCredentials(config.CredentialsFile, config.CredentialsProfile))
		}
		awsSession, err := session.NewSession(awsConfig)
		if err != nil {
			return nil, errors.Wrap(err, "cannot create AWS session")
		}
		client = dynamodb.New(awsSession)
	}
	if config.Table == "" {
		config.Table = DefaultTableName
	}
	if config.ReadCapacityUnits <= 0 {
		config.ReadCapacityUnits = DefaultReadCapacityUnits
	}
	if config.WriteCapacityUnits <= 0 {
		config.WriteCapacityUnits = DefaultWriteCapacityUnits
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	db := &DB{
		dynamodb:      client,
		tableName:     config.Table,
		readCapacity:  config.ReadCapacityUnits,
		writeCapacity: config.WriteCapacityUnits,
		logger:        config.Logger,
	}
	if !config.SkipTableCreation {
		go func() {
			if err := db.EnsureTable(); err != nil {
				db.logger.WithError(err).WithField("table", db.tableName).
					Warn("cannot ensure session table exists")
			}
		}()
	}
	return db, nil
}

// NewDB creates a DynamoDB DB given the DynamoDB client and the table
// name. No bootstrap is performed: the table is assumed to exist.
func NewDB(dynamodb *dynamodb.DynamoDB, tableName string) *DB {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &DB{
		dynamodb:      dynamodb,
		tableName:     tableName,
		readCapacity:  DefaultReadCapacityUnits,
		writeCapacity: DefaultWriteCapacityUnits,
		logger:        logrus.StandardLogger(),
	}
}

// NewSessionStore returns a session store persisting its sessions in the
// DynamoDB table.
func (db *DB) NewSessionStore(config sessionstore.Config) *sessionstore.Store {
	return sessionstore.New(db, config)
}

// EnsureTable checks that the table exists, creating it if it does not.
func (db *DB) EnsureTable() error {
	_, err := db.dynamodb.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(db.tableName),
	})
	if err == nil {
		return nil
	}
	if !hasErrorCode(err, dynamodb.ErrCodeResourceNotFoundException) {
		return errors.Wrap(err, "cannot describe dynamodb table").With("table", db.tableName)
	}
	return db.CreateTable(db.readCapacity, db.writeCapacity)
}

// CreateTable creates the dynamodb table.
func (db *DB) CreateTable(readCapacityUnits, writeCapacityUnits int64) error {
	errors := errors.With("table", db.tableName)
	_, err := db.dynamodb.CreateTable(&dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String(dynamodb.KeyTypeHash),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(readCapacityUnits),
			WriteCapacityUnits: aws.Int64(writeCapacityUnits),
		},
		TableName: aws.String(db.tableName),
	})
	if err != nil {
		return errors.Wrap(err, "unable to create dynamodb table")
	}
	return nil
}

// DropTable deletes the DynamoDB table. Table not found is not considered
// an error.
func (db *DB) DropTable() error {
	_, err := db.dynamodb.DeleteTable(&dynamodb.DeleteTableInput{
		TableName: aws.String(db.tableName),
	})
	if err != nil && hasErrorCode(err, dynamodb.ErrCodeResourceNotFoundException) {
		err = nil
	}
	if err != nil {
		return errors.Wrap(err, "unable to delete dynamodb table").With("table", db.tableName)
	}
	return nil
}

// Get implements the sessionstore.DB interface. The read is strongly
// consistent.
func (db *DB) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	errors := errors.With("id", id, "table", db.tableName)
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(db.tableName),
		Key:            recordKey(id),
		ConsistentRead: aws.Bool(true),
	}
	output, err := db.dynamodb.GetItemWithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get item")
	}
	if len(output.Item) == 0 {
		// not found
		return nil, nil
	}
	var rec record
	if err := dynamodbattribute.UnmarshalMap(output.Item, &rec); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal record")
	}
	return &sessionstore.Record{
		ID:      rec.ID,
		Expires: rec.Expires,
		Type:    rec.Type,
		Data:    rec.Sess,
	}, nil
}

// Put implements the sessionstore.DB interface.
func (db *DB) Put(ctx context.Context, rec *sessionstore.Record) error {
	errors := errors.With("id", rec.ID, "table", db.tableName)
	item, err := dynamodbattribute.MarshalMap(record{
		ID:      rec.ID,
		Expires: rec.Expires,
		Type:    rec.Type,
		Sess:    rec.Data,
	})
	if err != nil {
		return errors.Wrap(err, "failed to convert to dynamodb attribute value")
	}
	input := &dynamodb.PutItemInput{
		Item:      item,
		TableName: aws.String(db.tableName),
	}
	if _, err := db.dynamodb.PutItemWithContext(ctx, input); err != nil {
		return errors.Wrap(err, "unable to save record in dynamodb")
	}
	return nil
}

// Touch implements the sessionstore.DB interface.
//
// If no item exists at the id, DynamoDB creates a skeleton item holding
// only the key and expiry. The skeleton has no sess attribute, so a later
// Get treats it as absent and removes it.
func (db *DB) Touch(ctx context.Context, id string, expires int64) error {
	errors := errors.With("id", id, "table", db.tableName)
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(db.tableName),
		Key:       recordKey(id),
		ExpressionAttributeNames: map[string]*string{
			"#expires": aws.String("expires"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":expires": {N: aws.String(strconv.FormatInt(expires, 10))},
		},
		UpdateExpression: aws.String("SET #expires = :expires"),
	}
	if _, err := db.dynamodb.UpdateItemWithContext(ctx, input); err != nil {
		return errors.Wrap(err, "unable to update record expiry")
	}
	return nil
}

// Delete implements the sessionstore.DB interface.
func (db *DB) Delete(ctx context.Context, id string) error {
	errors := errors.With("id", id, "table", db.tableName)
	input := &dynamodb.DeleteItemInput{
		Key:       recordKey(id),
		TableName: aws.String(db.tableName),
	}
	if _, err := db.dynamodb.DeleteItemWithContext(ctx, input); err != nil {
		return errors.Wrap(err, "unable to delete record")
	}
	return nil
}

// Reap implements the sessionstore.Reaper interface. It scans for session
// records that expired before the given timestamp and deletes them one by
// one. Items of other kinds sharing the table are left alone.
func (db *DB) Reap(ctx context.Context, before int64) error {
	errors := errors.With("table", db.tableName)
	input := &dynamodb.ScanInput{
		TableName: aws.String(db.tableName),
		ExpressionAttributeNames: map[string]*string{
			"#expires": aws.String("expires"),
			"#type":    aws.String("type"),
			"#id":      aws.String("id"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":before": {N: aws.String(strconv.FormatInt(before, 10))},
			":type":   {S: aws.String(sessionstore.RecordType)},
		},
		FilterExpression:     aws.String("#expires < :before AND #type = :type"),
		ProjectionExpression: aws.String("#id"),
	}

	var ids []string
	err := db.dynamodb.ScanPagesWithContext(ctx, input,
		func(page *dynamodb.ScanOutput, lastPage bool) bool {
			for _, item := range page.Items {
				if attr := item["id"]; attr != nil && attr.S != nil {
					ids = append(ids, *attr.S)
				}
			}
			return true
		})
	if err != nil {
		return errors.Wrap(err, "cannot scan for expired records")
	}

	for _, id := range ids {
		if err := db.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func recordKey(id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"id": {S: aws.String(id)},
	}
}

func hasErrorCode(err error, code string) bool {
	if coder, ok := err.(interface{ Code() string }); ok {
		return coder.Code() == code
	}
	return false
}
