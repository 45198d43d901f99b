package core

// Transport is the register bus the chip sits on. Implementations address a
// single chip; the bus address is fixed when the transport is opened.
type Transport interface {
	ReadRegister(reg uint8) (uint8, error)
	WriteRegister(reg, value uint8) error
}

// BlockTransport is implemented by transports that can move several
// consecutive registers in one bus transaction. The chip only advances the
// register address between bytes while MISC.EN_AUTO_INCR is set.
type BlockTransport interface {
	Transport
	ReadBlock(reg uint8, buf []byte) error
	WriteBlock(reg uint8, data []byte) error
}

// Closer is implemented by transports that own an OS resource.
type Closer interface {
	Close() error
}
