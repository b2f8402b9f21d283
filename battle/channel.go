package battle

import "context"

// Controller is the synchronous, half-duplex channel to one bot.
//
// Per unit and round the engine calls SendID, then ReceiveBytecode, then
// SendResult. Each call blocks until done or ctx expires. Implementations
// report channel failures as *TransportError; an expired ctx is returned
// as ctx.Err() (possibly wrapped) so the engine can tell a slow bot from a
// dead one.
type Controller interface {
	Name() string
	SendID(ctx context.Context, id UnitID) error
	ReceiveBytecode(ctx context.Context) (string, error)
	SendResult(ctx context.Context, result string) error
	Close() error
}
