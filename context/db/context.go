package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/govm-net/counter/context"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBPath = "./sqlite.db"
)

type DBBlock struct {
	gorm.Model
	Height uint64 `gorm:"column:height;not null;unique;index"`
	Time   int64  `gorm:"column:block_time;not null"`
	Hash   string `gorm:"column:block_hash;not null;index;size:66"`
}

func (DBBlock) TableName() string {
	return "blocks"
}

type DBTransaction struct {
	gorm.Model
	Hash        string `gorm:"column:tx_hash;not null;unique;index;size:66"`
	BlockHeight uint64 `gorm:"column:block_height;not null;index"`
	FromAddress string `gorm:"column:from_address;not null;index;size:42"`
	ToAddress   string `gorm:"column:to_address;not null;index;size:42"`
	Value       uint64 `gorm:"column:value;not null"`
}

func (DBTransaction) TableName() string {
	return "transactions"
}

// DBObject represents the object in database
type DBObject struct {
	gorm.Model
	ObjectID string `gorm:"column:object_id;not null;unique;index;size:66"`
	Owner    string `gorm:"column:owner_address;not null;index;size:42"`
	Contract string `gorm:"column:contract_address;not null;index;size:42"`
}

// TableName specifies the table name for DBObject
func (DBObject) TableName() string {
	return "objects"
}

// DBObjectField represents a field of an object
type DBObjectField struct {
	gorm.Model
	ObjectID string `gorm:"column:object_id;not null;uniqueIndex:idx_object_field;size:66"`
	Key      string `gorm:"column:field_key;not null;uniqueIndex:idx_object_field;size:255"`
	Value    []byte `gorm:"column:field_value;type:blob;not null"`
}

// TableName specifies the table name for DBObjectField
func (DBObjectField) TableName() string {
	return "object_fields"
}

// DBEvent represents an event in the database
type DBEvent struct {
	gorm.Model
	BlockHeight uint64 `gorm:"column:block_height;not null;index"`
	TxHash      string `gorm:"column:tx_hash;not null;index;size:66"`
	Contract    string `gorm:"column:contract_address;not null;index;size:42"`
	EventName   string `gorm:"column:event_name;not null;index;size:255"`
	KeyValues   []byte `gorm:"column:key_values;type:blob;not null"` // JSON encoded key-value pairs
}

// TableName specifies the table name for DBEvent
func (DBEvent) TableName() string {
	return "events"
}

// Context implements the BlockchainContext interface using SQLite with GORM
type Context struct {
	db *gorm.DB

	mu           sync.Mutex
	sender       core.Address
	currentTx    *DBTransaction
	currentBlock *DBBlock
}

func init() {
	context.Register(context.DBContextType, NewContext)
}

// NewContext opens (or creates) the sqlite database at params["db_path"].
func NewContext(params map[string]any) (types.BlockchainContext, error) {
	return Open(context.StringParam(params, "db_path", defaultDBPath))
}

// Open opens the sqlite database at dbPath and migrates the schema.
func Open(dbPath string) (*Context, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx := &Context{db: db}
	if err := ctx.initDB(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (c *Context) initDB() error {
	err := c.db.AutoMigrate(
		&DBBlock{},
		&DBTransaction{},
		&DBObject{},
		&DBObjectField{},
		&DBEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SetBlockInfo records the block and makes it current.
func (c *Context) SetBlockInfo(height uint64, time int64, hash core.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var block DBBlock
	result := c.db.Where(map[string]any{"height": height}).
		Assign(DBBlock{Time: time, Hash: hash.String()}).
		FirstOrCreate(&block)
	if result.Error != nil {
		return fmt.Errorf("%w: save block %d: %v", core.ErrStorage, height, result.Error)
	}
	c.currentBlock = &block
	return nil
}

// SetTransactionInfo records the transaction and makes it current.
func (c *Context) SetTransactionInfo(hash core.Hash, from core.Address, to core.Address, value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var height uint64
	if c.currentBlock != nil {
		height = c.currentBlock.Height
	}
	var tx DBTransaction
	result := c.db.Where(map[string]any{"tx_hash": hash.String()}).
		Assign(DBTransaction{
			BlockHeight: height,
			FromAddress: from.String(),
			ToAddress:   to.String(),
			Value:       value,
		}).
		FirstOrCreate(&tx)
	if result.Error != nil {
		return fmt.Errorf("%w: save transaction %s: %v", core.ErrStorage, hash, result.Error)
	}
	c.currentTx = &tx
	c.sender = from
	return nil
}

// BlockHeight implements types.BlockchainContext
func (c *Context) BlockHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentBlock != nil {
		return c.currentBlock.Height
	}
	var height uint64
	c.db.Model(&DBBlock{}).Select("COALESCE(MAX(height), 0)").Scan(&height)
	return height
}

// BlockTime implements types.BlockchainContext
func (c *Context) BlockTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentBlock != nil {
		return c.currentBlock.Time
	}
	return 0
}

// ContractAddress implements types.BlockchainContext
func (c *Context) ContractAddress() core.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentTx != nil {
		return core.AddressFromString(c.currentTx.ToAddress)
	}
	return core.Address{}
}

// TransactionHash implements types.BlockchainContext
func (c *Context) TransactionHash() core.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentTx != nil {
		return core.HashFromString(c.currentTx.Hash)
	}
	return core.Hash{}
}

// Sender implements types.BlockchainContext
func (c *Context) Sender() core.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sender
}

// CreateObjectWithID implements types.BlockchainContext
func (c *Context) CreateObjectWithID(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	dbObj := &DBObject{
		Owner:    contract.String(),
		Contract: contract.String(),
		ObjectID: id.String(),
	}

	if err := c.db.Create(dbObj).Error; err != nil {
		return nil, fmt.Errorf("%w: create object: %v", core.ErrStorage, err)
	}

	return &Object{
		ctx:      c,
		id:       id,
		owner:    contract,
		contract: contract,
	}, nil
}

// GetObject implements types.BlockchainContext
func (c *Context) GetObject(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	var dbObj DBObject
	result := c.db.Where("object_id = ? AND contract_address = ?", id.String(), contract.String()).First(&dbObj)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: get object: %v", core.ErrStorage, result.Error)
	}

	return &Object{
		ctx:      c,
		id:       id,
		owner:    core.AddressFromString(dbObj.Owner),
		contract: contract,
	}, nil
}

// Log implements types.BlockchainContext
func (c *Context) Log(contract core.Address, eventName string, keyValues ...any) {
	data, err := json.Marshal(keyValues)
	if err != nil {
		slog.Error("Failed to marshal event data", "error", err)
		return
	}

	c.mu.Lock()
	event := &DBEvent{
		Contract:  contract.String(),
		EventName: eventName,
		KeyValues: data,
	}
	if c.currentBlock != nil {
		event.BlockHeight = c.currentBlock.Height
	}
	if c.currentTx != nil {
		event.TxHash = c.currentTx.Hash
	}
	c.mu.Unlock()

	if err := c.db.Create(event).Error; err != nil {
		slog.Error("Failed to save event", "error", err)
		return
	}

	params := []any{
		"block", event.BlockHeight,
		"tx", event.TxHash,
		"contract", contract,
		"event", eventName,
	}
	params = append(params, keyValues...)
	slog.Info("Contract event", params...)
}

// Events returns the events emitted by contract, oldest first.
func (c *Context) Events(contract core.Address) ([]types.Event, error) {
	var rows []DBEvent
	if err := c.db.Where("contract_address = ?", contract.String()).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list events: %v", core.ErrStorage, err)
	}
	events := make([]types.Event, 0, len(rows))
	for _, row := range rows {
		var kv []any
		if err := json.Unmarshal(row.KeyValues, &kv); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", row.ID, err)
		}
		events = append(events, types.Event{
			BlockHeight: row.BlockHeight,
			TxHash:      core.HashFromString(row.TxHash),
			Contract:    core.AddressFromString(row.Contract),
			Name:        row.EventName,
			KeyValues:   kv,
		})
	}
	return events, nil
}

// Close closes the underlying database handle.
func (c *Context) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Object implements the VMObject interface
type Object struct {
	ctx      *Context
	id       core.ObjectID
	owner    core.Address
	contract core.Address
}

func (o *Object) ID() core.ObjectID {
	return o.id
}

func (o *Object) Owner() core.Address {
	return o.owner
}

func (o *Object) Contract() core.Address {
	return o.contract
}

func (o *Object) Get(contract core.Address, field string) ([]byte, error) {
	if contract != o.contract {
		return nil, fmt.Errorf("invalid contract")
	}

	var dbField DBObjectField
	result := o.ctx.db.Where("object_id = ? AND field_key = ?", o.id.String(), field).First(&dbField)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrFieldNotFound, field)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: get field: %v", core.ErrStorage, result.Error)
	}

	return dbField.Value, nil
}

func (o *Object) Set(contract, sender core.Address, field string, value []byte) error {
	if contract != o.contract {
		return fmt.Errorf("invalid contract")
	}
	if sender != o.owner && contract != o.owner {
		return fmt.Errorf("not owner")
	}

	// Update or create field
	result := o.ctx.db.Where(DBObjectField{ObjectID: o.id.String(), Key: field}).
		Assign(DBObjectField{Value: value}).
		FirstOrCreate(&DBObjectField{})

	if result.Error != nil {
		return fmt.Errorf("%w: update field: %v", core.ErrStorage, result.Error)
	}
	return nil
}
