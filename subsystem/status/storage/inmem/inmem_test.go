package inmem

import (
	"testing"

	"github.com/dentalrpa/journalize/subsystem/status/storage"
	"github.com/dentalrpa/journalize/subsystem/status/storage/test"
)

func TestInmemStatusStorage(t *testing.T) {
	test.TestStatusStorage(t, func() storage.Storage { return New() })
}
