// Package mock holds the components shared by the habitat tests.
package mock

import (
	"errors"
	"iter"
	"sync"

	"github.com/centraunit/habitat"
)

// ErrBroken is returned by Broken's post-construct hook.
var ErrBroken = errors.New("broken on purpose")

// Metadata returns a TagMetadata with Engine and Radio declared as
// contracts.
func Metadata() *habitat.TagMetadata {
	return habitat.NewTagMetadata().DeclareContract(
		habitat.TypeOf[Engine](),
		habitat.TypeOf[Radio](),
	)
}

// Engine is a contract with two implementations.
type Engine interface {
	Cylinders() int
}

type V8 struct {
	Serial string
}

func (*V8) Cylinders() int { return 8 }
func (*V8) HabitatName() string { return "v8" }

type V6 struct {
	Serial string
}

func (*V6) Cylinders() int { return 6 }
func (*V6) HabitatName() string { return "v6" }

type FuelTank struct {
	Liters int
}

// Car receives every Engine and publishes its tank once built.
type Car struct {
	Engines  []Engine  `inject:""`
	FuelTank *FuelTank `extract:""`
	Built    bool
}

func (c *Car) PostConstruct() error {
	c.FuelTank = &FuelTank{Liters: 60}
	c.Built = true
	return nil
}

// Radio is a contract nothing implements unless a test adds one.
type Radio interface {
	Station() string
}

type FM struct {
	Band string
}

func (*FM) Station() string { return "101.1" }
func (*FM) HabitatName() string { return "fm" }

// Garage has a required and an optional dependency.
type Garage struct {
	Car   *Car  `inject:""`
	Radio Radio `inject:"fm,optional"`
}

// Showroom requires a radio.
type Showroom struct {
	Radio Radio `inject:"fm"`
}

// Pair holds exactly two engines.
type Pair struct {
	Engines [2]Engine `inject:""`
}

// Ticket is PerLookup; every resolution builds a new one.
type Ticket struct {
	Seq int
}

func (*Ticket) HabitatScope() habitat.ScopeKind { return habitat.PerLookup }

type CycleA struct {
	B *CycleB `inject:""`
}

type CycleB struct {
	A *CycleA `inject:""`
}

type Broken struct {
	Attempts int
}

func (b *Broken) PostConstruct() error {
	b.Attempts++
	return ErrBroken
}

// Frame is extracted from Chassis, which Truck embeds.
type Frame struct {
	Serial string
}

type Bed struct {
	Length int
}

type Chassis struct {
	Frame *Frame `extract:""`
}

type Truck struct {
	Chassis
	Bed *Bed `extract:""`
}

func (t *Truck) PostConstruct() error {
	t.Frame = &Frame{Serial: "F-1"}
	t.Bed = &Bed{Length: 8}
	return nil
}

// Depot publishes tanks through methods; declare Tanks and Reserve with
// TagMetadata.ExtractMethods.
type Depot struct {
	tanks []*FuelTank
}

func (d *Depot) PostConstruct() error {
	d.tanks = []*FuelTank{{Liters: 100}, nil, {Liters: 200}}
	return nil
}

func (d *Depot) Tanks() []*FuelTank { return d.tanks }

func (d *Depot) Reserve() iter.Seq[*Bed] {
	return func(yield func(*Bed) bool) {
		for _, l := range []int{4, 6} {
			if !yield(&Bed{Length: l}) {
				return
			}
		}
	}
}

func (d *Depot) Audit() (*Ticket, error) {
	return nil, errors.New("audit failed")
}

func (d *Depot) Lookup(id int) *Ticket { return &Ticket{Seq: id} }

// Journal records release order across components.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *Journal) Record(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// Pool is released with PreDestroy.
type Pool struct {
	Journal *Journal `inject:""`
	Conn    *Conn    `extract:""`
}

func (p *Pool) PostConstruct() error {
	p.Conn = &Conn{journal: p.Journal}
	return nil
}

func (p *Pool) PreDestroy() error {
	p.Journal.Record("pool")
	return nil
}

// Conn is released with Close.
type Conn struct {
	journal *Journal
}

func (c *Conn) Close() error {
	c.journal.Record("conn")
	return nil
}

// Session lives in the "request" scope.
type Session struct {
	Car  *Car  `inject:""`
	User *User `extract:""`
}

func (*Session) HabitatScope() habitat.ScopeKind { return habitat.Custom("request") }

func (s *Session) PostConstruct() error {
	s.User = &User{Name: "guest"}
	return nil
}

type User struct {
	Name string
}
