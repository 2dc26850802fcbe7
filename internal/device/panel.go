package device

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/render"
)

// DriverPanel is the name of the GPIO panel driver.
const DriverPanel = "panel"

const buttonPollInterval = 5 * time.Millisecond

// PanelOptions describes a button panel: one GPIO per key, read active low,
// and a single SSD1306 screen showing the whole grid.
type PanelOptions struct {
	I2CBus   string
	Pins     []string
	Cols     int
	Debounce time.Duration
}

// Panel opens GPIO button panels.
type Panel struct {
	opts   PanelOptions
	logger *slog.Logger
}

// NewPanel creates a panel driver.
func NewPanel(opts PanelOptions, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cols <= 0 {
		opts.Cols = len(opts.Pins)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 160 * time.Millisecond
	}
	return &Panel{opts: opts, logger: logger}
}

// Name implements Driver.
func (p *Panel) Name() string {
	return DriverPanel
}

// Geometry returns the grid the pins are arranged in.
func (p *Panel) Geometry() layout.Geometry {
	cols := p.opts.Cols
	if cols <= 0 || len(p.opts.Pins) == 0 {
		return layout.Geometry{}
	}
	return layout.Geometry{Rows: (len(p.opts.Pins) + cols - 1) / cols, Cols: cols}
}

// Open implements Driver.
func (p *Panel) Open(press func(key int)) (Deck, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", ErrNotFound, err)
	}

	buttons := make([]*button, 0, len(p.opts.Pins))
	for i, name := range p.opts.Pins {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("%w: no pin %s", ErrNotFound, name)
		}
		// Set it as input, with an internal pull up resistor
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to set up pin %s: %w", name, err)
		}
		buttons = append(buttons, &button{key: i, pin: pin, debounce: p.opts.Debounce})
	}

	bus, err := i2creg.Open(p.opts.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("%w: i2c bus: %v", ErrNotFound, err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("%w: ssd1306: %v", ErrNotFound, err)
	}
	if err := dev.SetContrast(1); err != nil {
		p.logger.Debug("failed to set contrast", "error", err)
	}

	d := &panelDeck{
		geo:     p.Geometry(),
		bus:     bus,
		dev:     dev,
		buttons: buttons,
		press:   press,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		healthy: true,
	}
	go d.pollButtons()
	return d, nil
}

// levelReader is the part of a GPIO pin a button reads.
type levelReader interface {
	Read() gpio.Level
}

// button turns raw pin levels into debounced presses.
type button struct {
	key        int
	pin        levelReader
	debounce   time.Duration
	pressed    bool
	lastChange time.Time
}

// refresh samples the pin and reports a new press. Pins are pulled up, so
// a low level means pressed.
func (b *button) refresh(now time.Time) bool {
	was := b.pressed
	b.pressed = !bool(b.pin.Read())
	if b.pressed == was {
		return false
	}
	if now.Sub(b.lastChange) < b.debounce {
		b.pressed = was
		return false
	}
	b.lastChange = now
	return b.pressed
}

type panelDeck struct {
	geo     layout.Geometry
	bus     i2c.BusCloser
	buttons []*button
	press   func(key int)

	mu      sync.Mutex
	dev     *ssd1306.Dev
	healthy bool

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

func (d *panelDeck) Geometry() layout.Geometry {
	return d.geo
}

func (d *panelDeck) pollButtons() {
	defer close(d.doneCh)
	ticker := time.NewTicker(buttonPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case now := <-ticker.C:
			for _, b := range d.buttons {
				if b.refresh(now) && d.press != nil {
					d.press(b.key)
				}
			}
		}
	}
}

func (d *panelDeck) Draw(frame render.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	bounds := d.dev.Bounds()
	img := render.Tile(frame.Images, d.geo.Cols, d.geo.Rows, bounds.Dx(), bounds.Dy())
	if err := d.dev.Draw(bounds, img, image.Point{}); err != nil {
		d.healthy = false
		return err
	}
	return nil
}

func (d *panelDeck) Healthy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthy
}

func (d *panelDeck) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stopCh)
		<-d.doneCh
		d.mu.Lock()
		defer d.mu.Unlock()
		d.healthy = false
		if herr := d.dev.Halt(); herr != nil {
			err = herr
		}
		if cerr := d.bus.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
