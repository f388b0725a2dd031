package rps

import (
	"sort"
)

// game is the engine-owned tournament state
type game struct {
	id      string
	name    string
	host    string
	players []string
	ggScore int

	isPlayer    map[string]bool
	connections map[string]bool
	choices     map[string]Choice
	scores      map[string]int
	excluded    map[string]bool

	fastMode bool
	locked   bool
	gameOver bool
}

// State is the public snapshot of a game. Pending choices are reported by
// who submitted, never by value.
type State struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Host        string         `json:"host"`
	PlayerIDs   []string       `json:"player_ids"`
	Connections []string       `json:"connections"`
	Submitted   []string       `json:"submitted"`
	Scores      map[string]int `json:"scores"`
	Excluded    []string       `json:"excluded"`
	FastMode    bool           `json:"fast_mode"`
	Locked      bool           `json:"locked"`
	GameOver    bool           `json:"game_over"`
	GGScore     int            `json:"gg_score"`
}

// Resolution is the outcome of one complete round
type Resolution struct {
	// Choices holds every throw of the round
	Choices map[string]Choice
	// Excluded is set when the round had no single winner. It is empty on a
	// universal draw and holds the newly excluded players on a partial tie.
	Excluded []string
	// Winner is set when exactly one player had the top score
	Winner string
	// GameOver is set when Winner reached the game's gg score
	GameOver bool
}

func newGame(id, name string, init Init) *game {
	g := &game{
		id:          id,
		name:        name,
		host:        init.Host,
		ggScore:     init.GGScore,
		isPlayer:    make(map[string]bool),
		connections: map[string]bool{init.Host: true},
		choices:     make(map[string]Choice),
		scores:      make(map[string]int),
		excluded:    make(map[string]bool),
	}
	for _, p := range init.Players {
		g.addPlayer(p)
	}
	g.addPlayer(init.Host)
	return g
}

func (g *game) addPlayer(id string) {
	if g.isPlayer[id] {
		return
	}
	g.isPlayer[id] = true
	g.players = append(g.players, id)
	g.scores[id] = 0
}

// join connects an invited player. It reports whether anything changed.
func (g *game) join(session string) bool {
	if !g.isPlayer[session] || g.connections[session] {
		return false
	}
	g.connections[session] = true
	return true
}

// setFastMode applies the flag for the host only and returns the resulting value
func (g *game) setFastMode(session string, flag bool) bool {
	if session == g.host {
		g.fastMode = flag
	}
	return g.fastMode
}

// eligible is the number of connected players still in the round
func (g *game) eligible() int {
	return len(g.connections) - len(g.excluded)
}

// choose records a throw. When the throw completes the round it is resolved
// and the outcome returned.
func (g *game) choose(session string, c Choice) (*Resolution, bool) {
	if g.gameOver || g.excluded[session] || !g.connections[session] {
		return nil, false
	}
	g.choices[session] = c
	if len(g.choices) != g.eligible() {
		return nil, true
	}
	res := g.resolve()
	return &res, true
}

func (g *game) resolve() Resolution {
	players := make([]string, 0, len(g.choices))
	for p := range g.choices {
		players = append(players, p)
	}
	sort.Strings(players)

	round := make(map[string]int, len(players))
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			d := duel(g.choices[players[i]], g.choices[players[j]])
			round[players[i]] += d
			round[players[j]] -= d
		}
	}

	best := 0
	for i, p := range players {
		if i == 0 || round[p] > best {
			best = round[p]
		}
	}
	var winners []string
	for _, p := range players {
		if round[p] == best {
			winners = append(winners, p)
		}
	}

	res := Resolution{Choices: g.choices}
	g.choices = make(map[string]Choice)

	switch {
	case len(winners) == len(players):
		res.Excluded = []string{}
	case len(winners) > 1:
		isWinner := make(map[string]bool, len(winners))
		for _, w := range winners {
			isWinner[w] = true
		}
		res.Excluded = []string{}
		for _, p := range sortedKeys(g.connections) {
			if !g.excluded[p] && !isWinner[p] {
				g.excluded[p] = true
				res.Excluded = append(res.Excluded, p)
			}
		}
	default:
		res.Winner = winners[0]
		g.scores[res.Winner]++
		g.excluded = make(map[string]bool)
		if g.scores[res.Winner] >= g.ggScore {
			g.gameOver = true
			res.GameOver = true
		}
	}
	return res
}

func (g *game) state() State {
	players := make([]string, len(g.players))
	copy(players, g.players)
	scores := make(map[string]int, len(g.scores))
	for p, s := range g.scores {
		scores[p] = s
	}
	return State{
		ID:          g.id,
		Name:        g.name,
		Host:        g.host,
		PlayerIDs:   players,
		Connections: sortedKeys(g.connections),
		Submitted:   sortedKeys(g.choices),
		Scores:      scores,
		Excluded:    sortedKeys(g.excluded),
		FastMode:    g.fastMode,
		Locked:      g.locked,
		GameOver:    g.gameOver,
		GGScore:     g.ggScore,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
