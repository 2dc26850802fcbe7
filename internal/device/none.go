package device

// DriverNone is the name of the headless driver.
const DriverNone = "none"

// None never finds a deck. Blocking requests get a no_device reply and
// fall back to the terminal, while advisories and status updates still
// queue up for the API and status queries.
type None struct{}

// Name implements Driver.
func (None) Name() string {
	return DriverNone
}

// Open implements Driver.
func (None) Open(func(key int)) (Deck, error) {
	return nil, ErrNotFound
}
