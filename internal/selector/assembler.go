package selector

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

// Assembler validates specs and shapes them into unsaved graphs. It never
// touches storage.
type Assembler struct {
	ids      IDGenerator
	now      func() time.Time
	validate *validator.Validate
}

func NewAssembler(ids IDGenerator, now func() time.Time) *Assembler {
	return &Assembler{ids: ids, now: now, validate: newValidator()}
}

// AssembleCreate builds the full five-entity graph with fresh ids. Every
// record shares one timestamp.
func (a *Assembler) AssembleCreate(spec *domain.ProxySelectorSpec) (*domain.Graph, error) {
	if spec == nil {
		return nil, invalid("selector is required")
	}
	if spec.ID != "" {
		return nil, invalid("id must be empty on create")
	}
	if err := a.check(spec); err != nil {
		return nil, err
	}
	if spec.ListenerNode == "" {
		return nil, invalid("listenerNode is required")
	}

	now := a.now()
	selectorID := a.ids.NewID()
	discoveryID := a.ids.NewID()
	handlerID := a.ids.NewID()
	relationID := a.ids.NewID()

	return &domain.Graph{
		Selector:  newSelector(spec, selectorID, now),
		Discovery: newDiscovery(spec, discoveryID, now),
		Handler:   newHandler(spec, handlerID, discoveryID, now),
		Relation:  newRelation(spec, relationID, handlerID, selectorID, now),
		Upstreams: newUpstreams(spec.Upstreams, handlerID, a.ids, now),
		Spec:      spec,
	}, nil
}

// AssembleUpdate reuses the selector id and prepares replacement upstream
// rows. The discovery, handler and relation are located by the writer.
func (a *Assembler) AssembleUpdate(spec *domain.ProxySelectorSpec) (*domain.Graph, error) {
	if spec == nil {
		return nil, invalid("selector is required")
	}
	if spec.ID == "" {
		return nil, invalid("id is required on update")
	}
	if err := a.check(spec); err != nil {
		return nil, err
	}

	now := a.now()
	return &domain.Graph{
		Selector:  newSelector(spec, spec.ID, now),
		Upstreams: newUpstreams(spec.Upstreams, "", a.ids, now),
		Spec:      spec,
	}, nil
}

func (a *Assembler) check(spec *domain.ProxySelectorSpec) error {
	if err := a.validate.Struct(spec); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}
