package storage

import (
	"fmt"

	"github.com/wwan-labs/wwan-avs/domain"
)

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
