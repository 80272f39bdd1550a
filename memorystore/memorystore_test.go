package memorystore

import (
	"testing"

	"github.com/tyrchen/connect-dynamodb/internal/testhelper"
)

func TestMemoryStore(t *testing.T) {
	testhelper.DBTest(t, NewDB())
	testhelper.StoreTest(t, NewDB(), testhelper.NewClock())
}
