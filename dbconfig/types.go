package dbconfig

import (
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/pkg/errors"
)

var (
	ErrChainNotFound        = commonerrors.ErrChainNotFound
	ErrInvalidChainNonce    = commonerrors.ErrInvalidChainNonce
	ErrDatabaseConnect      = commonerrors.ErrDatabaseConnect
	ErrMetadataNotFound     = commonerrors.ErrMetadataNotFound
	ErrFailedActionNotFound = errors.New("failed action not found")
)
