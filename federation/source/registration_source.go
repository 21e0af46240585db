package source

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// RegistrationGraph is the wire shape of one subgraph join announcement,
// matching the teacher's registration request body.
type RegistrationGraph struct {
	Name string `json:"name"`
	Host string `json:"host"`
	SDL  string `json:"sdl"`
}

// RegistrationRequest is the body POSTed to /schema/registration.
type RegistrationRequest struct {
	RegistrationGraphs []RegistrationGraph `json:"registration_graphs"`
}

// RegistrationSource accepts subgraph join announcements over HTTP and
// recomposes the supergraph synchronously within the handler. Unlike the
// teacher's registry, which fired a recompose broadcast from a goroutine
// that could still be writing to the ResponseWriter after the handler
// returned, every registration here is folded into the response it
// triggered before that response is sent.
type RegistrationSource struct {
	publisher *Publisher

	mu    sync.Mutex
	specs map[string]registeredGraph
}

type registeredGraph struct {
	spec SubgraphSpec
	sdl  string
}

// NewRegistrationSource builds an empty RegistrationSource publishing to
// publisher. Registering zero subgraphs never publishes a snapshot.
func NewRegistrationSource(publisher *Publisher) *RegistrationSource {
	return &RegistrationSource{
		publisher: publisher,
		specs:     make(map[string]registeredGraph),
	}
}

var _ http.Handler = (*RegistrationSource)(nil)

func (r *RegistrationSource) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/schema/registration" {
		http.NotFound(w, req)
		return
	}
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body RegistrationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "failed to decode registration request", http.StatusBadRequest)
		return
	}

	if err := r.register(body.RegistrationGraphs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"registered": len(body.RegistrationGraphs)})
}

// register merges the given graphs into the known set, keyed by name so a
// resubmission from a redeployed subgraph replaces its prior SDL/host, then
// recomposes and publishes a new snapshot.
func (r *RegistrationSource) register(graphs []RegistrationGraph) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range graphs {
		r.specs[g.Name] = registeredGraph{
			spec: SubgraphSpec{Name: g.Name, Host: g.Host},
			sdl:  g.SDL,
		}
	}

	specs := make([]SubgraphSpec, 0, len(r.specs))
	sdls := make(map[string]string, len(r.specs))
	for name, rg := range r.specs {
		specs = append(specs, rg.spec)
		sdls[name] = rg.sdl
	}

	superGraph, err := Compose(specs, sdls)
	if err != nil {
		return err
	}

	r.publisher.Publish(&Snapshot{SuperGraph: superGraph, Specs: specs, BuiltAt: time.Now()})
	return nil
}
