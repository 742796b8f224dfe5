package blockpull

import "errors"

var (
	// ErrNilLocation is returned by SetLocation when given no header.
	ErrNilLocation = errors.New("location must not be nil")

	// ErrLocationNotSet is returned when pulling or requesting windows
	// before SetLocation established a consumer position.
	ErrLocationNotSet = errors.New("SetLocation must be called before pulling blocks")

	// ErrChainNotLoaded is returned by PushBlock before the first NextBlock
	// loaded a chain to resolve headers against.
	ErrChainNotLoaded = errors.New("chain not loaded")

	// ErrUnknownBlock is returned by PushBlock for a block whose header is
	// not on the current chain.
	ErrUnknownBlock = errors.New("block not on chain")

	// ErrInvalidLength is returned by PushBlock for a negative block length.
	ErrInvalidLength = errors.New("invalid block length")
)
