package topology

import (
	"fmt"
	"math"
	"sort"

	"coherence/internal/model"
)

const DefaultLeakageFloor = 1e-3

// Config carries the coupling constants. Sigma has no default and must be set.
type Config struct {
	GUnit float64 `json:"g_unit"`
	Sigma float64 `json:"sigma"`
	// LeakageFloor snaps couplings whose Gaussian suppression is below it to zero.
	// Zero selects DefaultLeakageFloor; a negative value keeps every coupling.
	LeakageFloor float64 `json:"leakage_floor,omitempty"`
}

func (c Config) Validate() error {
	if math.IsNaN(c.GUnit) || c.GUnit < 0 {
		return fmt.Errorf("%w: g_unit must be >= 0, got %v", model.ErrInvalidParameter, c.GUnit)
	}
	if math.IsNaN(c.Sigma) || c.Sigma <= 0 {
		return fmt.Errorf("%w: sigma must be > 0, got %v", model.ErrInvalidParameter, c.Sigma)
	}
	return nil
}

func (c Config) leakageFloor() float64 {
	if c.LeakageFloor == 0 {
		return DefaultLeakageFloor
	}
	return c.LeakageFloor
}

func AxionAngle(chern int) float64 {
	return 2 * math.Pi * float64(chern)
}

// Suppression is the Gaussian mismatch factor exp(-(tx-ch)^2/sigma^2).
func Suppression(sigma float64, txChern, channelChern int) float64 {
	d := float64(txChern - channelChern)
	return math.Exp(-(d * d) / (sigma * sigma))
}

// Coupling returns g_unit * C_tx^2 * exp(-(C_tx-C_ch)^2/sigma^2).
func Coupling(cfg Config, txChern, channelChern int) float64 {
	c := float64(txChern)
	return cfg.GUnit * c * c * Suppression(cfg.Sigma, txChern, channelChern)
}

// Routing is the channel assignment for one run.
type Routing struct {
	Channels []model.Channel
	// ChannelOf maps node id to the index in Channels.
	ChannelOf map[string]int
	// Coupling[tx node id][channel index]
	Coupling    map[string][]float64
	Transmitter model.Node
	Receivers   []model.Node
}

// ChannelIndex returns the index of the channel carrying chern.
func (r Routing) ChannelIndex(chern int) (int, bool) {
	idx := sort.Search(len(r.Channels), func(i int) bool { return r.Channels[i].Chern >= chern })
	if idx < len(r.Channels) && r.Channels[idx].Chern == chern {
		return idx, true
	}
	return 0, false
}

// DrivenChannels counts channels with nonzero coupling from the transmitter.
func (r Routing) DrivenChannels() int {
	count := 0
	for _, k := range r.Coupling[r.Transmitter.ID] {
		if k != 0 {
			count++
		}
	}
	return count
}

// Route assigns every node to the channel of its Chern number and computes the
// transmitter's coupling into each channel.
func Route(cfg Config, nodes []model.Node) (Routing, error) {
	if err := cfg.Validate(); err != nil {
		return Routing{}, err
	}
	if len(nodes) == 0 {
		return Routing{}, fmt.Errorf("%w: at least one node is required", model.ErrInvalidParameter)
	}

	seen := make(map[string]struct{}, len(nodes))
	cherns := make(map[int]struct{}, len(nodes))
	var routing Routing
	transmitters := 0
	for _, node := range nodes {
		if node.ID == "" {
			return Routing{}, fmt.Errorf("%w: node id is required", model.ErrInvalidParameter)
		}
		if _, dup := seen[node.ID]; dup {
			return Routing{}, fmt.Errorf("%w: duplicate node id %q", model.ErrInvalidParameter, node.ID)
		}
		seen[node.ID] = struct{}{}
		if node.Chern < 0 {
			return Routing{}, fmt.Errorf("%w: node %s chern number must be >= 0, got %d", model.ErrInvalidParameter, node.ID, node.Chern)
		}
		if node.NoiseStd < 0 {
			return Routing{}, fmt.Errorf("%w: node %s noise std must be >= 0", model.ErrInvalidParameter, node.ID)
		}
		switch node.Role {
		case model.RoleTransmitter:
			transmitters++
			routing.Transmitter = node
		case model.RoleReceiver:
			routing.Receivers = append(routing.Receivers, node)
		default:
			return Routing{}, fmt.Errorf("%w: node %s has unknown role %q", model.ErrInvalidParameter, node.ID, node.Role)
		}
		cherns[node.Chern] = struct{}{}
	}
	if transmitters != 1 {
		return Routing{}, fmt.Errorf("%w: exactly one transmitter is required, got %d", model.ErrInvalidParameter, transmitters)
	}

	ordered := make([]int, 0, len(cherns))
	for chern := range cherns {
		ordered = append(ordered, chern)
	}
	sort.Ints(ordered)
	routing.Channels = make([]model.Channel, 0, len(ordered))
	for _, chern := range ordered {
		routing.Channels = append(routing.Channels, model.NewChannel(chern))
	}

	routing.ChannelOf = make(map[string]int, len(nodes))
	for _, node := range nodes {
		idx, _ := routing.ChannelIndex(node.Chern)
		routing.ChannelOf[node.ID] = idx
	}

	floor := cfg.leakageFloor()
	tx := routing.Transmitter
	row := make([]float64, len(routing.Channels))
	for i, ch := range routing.Channels {
		if ch.Chern != tx.Chern && Suppression(cfg.Sigma, tx.Chern, ch.Chern) < floor {
			continue
		}
		row[i] = Coupling(cfg, tx.Chern, ch.Chern)
	}
	routing.Coupling = map[string][]float64{tx.ID: row}
	return routing, nil
}
