package eventbus

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Registrants for discovery tests

type baseListener struct {
	_ Subscribe `subscribe:"OnOrder"`

	trail *trail
}

func (b *baseListener) OnOrder(e orderEvent) { b.trail.add("base:" + e.ID) }

// overridingListener overrides the marked method of its embedded struct.
type overridingListener struct {
	baseListener
}

func (o *overridingListener) OnOrder(e orderEvent) { o.trail.add("override:" + e.ID) }

// promotingListener inherits the marked method unchanged.
type promotingListener struct {
	baseListener
}

// vetoMixin and plainMixin mark the same method with different options.
type vetoMixin struct {
	_ Subscribe `subscribe:"Check,veto"`
}

type plainMixin struct {
	_ Subscribe `subscribe:"Check"`
	_ Subscribe `subscribe:"OnOrder,serial"`
}

type diamondListener struct {
	vetoMixin
	*plainMixin

	trail *trail
}

func (d *diamondListener) Check(e orderEvent) *VetoError {
	d.trail.add("check:" + e.ID)
	return nil
}

func (d *diamondListener) OnOrder(e orderEvent) { d.trail.add("order:" + e.ID) }

// ambiguousA and ambiguousB both define OnOrder; embedding both leaves the
// outer type without it.
type ambiguousA struct {
	_ Subscribe `subscribe:"OnOrder"`
}

func (ambiguousA) OnOrder(orderEvent) {}

type ambiguousB struct{}

func (ambiguousB) OnOrder(orderEvent) {}

type ambiguousListener struct {
	ambiguousA
	ambiguousB
}

// Interface contracts

type orderObserver interface {
	Observe(e orderEvent)
}

type auditedObserver interface {
	orderObserver
	Audit(ctx context.Context, e orderEvent) *VetoError
}

var (
	observeContract = ContractFor[orderObserver](Mark("Observe"))
	auditContract   = ContractFor[auditedObserver](Mark("Audit", CanVeto()))
)

type plainObserver struct {
	trail *trail
}

func (p *plainObserver) Observe(e orderEvent) { p.trail.add("observe:" + e.ID) }

type auditingObserver struct {
	plainObserver
}

func (a *auditingObserver) Audit(_ context.Context, e orderEvent) *VetoError {
	a.trail.add("audit:" + e.ID)
	return nil
}

// Invalid registrants

type noMarkers struct{}

func (noMarkers) OnOrder(orderEvent) {}

type missingMethod struct {
	_ Subscribe `subscribe:"Missing"`
}

type unexportedMethod struct {
	_ Subscribe `subscribe:"onOrder"`
}

func (u *unexportedMethod) onOrder(orderEvent) {}

type untaggedMarker struct {
	_ Subscribe
}

type badOption struct {
	_ Subscribe `subscribe:"OnOrder,sometimes"`
}

func (b *badOption) OnOrder(orderEvent) {}

type emptyTag struct {
	_ Subscribe `subscribe:",veto"`
}

type twoEvents struct {
	_ Subscribe `subscribe:"OnPair"`
}

func (t *twoEvents) OnPair(a orderEvent, b shipEvent) {}

type noParams struct {
	_ Subscribe `subscribe:"OnNothing"`
}

func (n *noParams) OnNothing() {}

type badResult struct {
	_ Subscribe `subscribe:"OnOrder"`
}

func (b *badResult) OnOrder(orderEvent) int { return 0 }

type variadicHandler struct {
	_ Subscribe `subscribe:"OnOrders"`
}

func (v *variadicHandler) OnOrders(e ...orderEvent) {}

type undeclaredVeto struct {
	_ Subscribe `subscribe:"Check"`
}

func (u *undeclaredVeto) Check(orderEvent) *VetoError { return nil }

func TestDiscover_SingleMarker(t *testing.T) {
	c := &orderCatcher{trail: &trail{}}

	handlers, err := discover(c, nil)

	require.NoError(t, err)
	require.Len(t, handlers, 1)
	h := handlers[0]
	assert.Equal(t, "OnOrder", h.Method().Name)
	assert.Equal(t, reflect.TypeFor[orderEvent](), h.EventType())
	assert.Same(t, c, h.Target())
	assert.False(t, h.CanVeto())
	assert.False(t, h.Serial())
	assert.Equal(t, "*eventbus.orderCatcher.OnOrder", h.String())
}

func TestDiscover_NoMarkers(t *testing.T) {
	handlers, err := discover(&noMarkers{}, nil)

	require.NoError(t, err)
	assert.Empty(t, handlers)
}

func TestDiscover_OverrideRunsOnce(t *testing.T) {
	tr := &trail{}
	bus := New()
	l := &overridingListener{baseListener{trail: tr}}

	handlers, err := discover(l, nil)
	require.NoError(t, err)
	require.Len(t, handlers, 1)

	require.NoError(t, bus.Register(l))
	require.NoError(t, bus.Post(context.Background(), orderEvent{ID: "1"}))

	assert.Equal(t, []string{"override:1"}, tr.all())
}

func TestDiscover_PromotedMethod(t *testing.T) {
	tr := &trail{}
	bus := New()

	require.NoError(t, bus.Register(&promotingListener{baseListener{trail: tr}}))
	require.NoError(t, bus.Post(context.Background(), orderEvent{ID: "1"}))

	assert.Equal(t, []string{"base:1"}, tr.all())
}

func TestDiscover_MergesDeclarations(t *testing.T) {
	d := &diamondListener{plainMixin: &plainMixin{}, trail: &trail{}}

	handlers, err := discover(d, nil)
	require.NoError(t, err)
	require.Len(t, handlers, 2)

	byName := map[string]*Handler{}
	for _, h := range handlers {
		byName[h.Method().Name] = h
	}
	require.Contains(t, byName, "Check")
	require.Contains(t, byName, "OnOrder")
	assert.True(t, byName["Check"].CanVeto(), "veto from any declaration wins")
	assert.False(t, byName["OnOrder"].CanVeto())
	assert.True(t, byName["OnOrder"].Serial())
}

func TestDiscover_AmbiguousPromotion(t *testing.T) {
	_, err := discover(&ambiguousListener{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidHandler)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "OnOrder", cfgErr.Method)
}

func TestDiscover_Contracts(t *testing.T) {
	tr := &trail{}
	contracts := []Contract{observeContract, auditContract}

	t.Run("interface marker applies to implementations", func(t *testing.T) {
		handlers, err := discover(&plainObserver{trail: tr}, contracts)

		require.NoError(t, err)
		require.Len(t, handlers, 1)
		assert.Equal(t, "Observe", handlers[0].Method().Name)
	})

	t.Run("embedded interface markers are inherited", func(t *testing.T) {
		handlers, err := discover(&auditingObserver{plainObserver{trail: tr}}, contracts)

		require.NoError(t, err)
		require.Len(t, handlers, 2)
		assert.Equal(t, "Audit", handlers[0].Method().Name)
		assert.True(t, handlers[0].CanVeto())
		assert.Equal(t, "Observe", handlers[1].Method().Name)
		assert.False(t, handlers[1].CanVeto())
	})

	t.Run("contract ignored for other types", func(t *testing.T) {
		handlers, err := discover(&noMarkers{}, contracts)

		require.NoError(t, err)
		assert.Empty(t, handlers)
	})
}

func TestDiscover_ContractsThroughBus(t *testing.T) {
	tr := &trail{}
	bus := New(WithContracts(observeContract, auditContract))

	require.NoError(t, bus.Register(&auditingObserver{plainObserver{trail: tr}}))
	require.NoError(t, bus.Post(context.Background(), orderEvent{ID: "7"}))

	assert.Equal(t, []string{"audit:7", "observe:7"}, tr.all())
}

func TestNewContract_Invalid(t *testing.T) {
	t.Run("not an interface", func(t *testing.T) {
		_, err := NewContract(reflect.TypeFor[orderEvent](), Mark("Name"))
		assert.ErrorIs(t, err, ErrInvalidContract)
	})

	t.Run("nil type", func(t *testing.T) {
		_, err := NewContract(nil)
		assert.ErrorIs(t, err, ErrInvalidContract)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := NewContract(reflect.TypeFor[orderObserver](), Mark("Missing"))
		assert.ErrorIs(t, err, ErrInvalidHandler)
	})

	t.Run("ContractFor panics", func(t *testing.T) {
		assert.Panics(t, func() {
			ContractFor[orderObserver](Mark("Missing"))
		})
	})

	t.Run("Interface", func(t *testing.T) {
		assert.Equal(t, reflect.TypeFor[orderObserver](), observeContract.Interface())
	})
}

func TestDiscover_InvalidRegistrants(t *testing.T) {
	var nilPtr *orderCatcher

	tests := []struct {
		name       string
		registrant any
		want       error
	}{
		{"nil", nil, ErrInvalidRegistrant},
		{"non-pointer", orderCatcher{}, ErrInvalidRegistrant},
		{"nil pointer", nilPtr, ErrInvalidRegistrant},
		{"missing method", &missingMethod{}, ErrInvalidHandler},
		{"unexported method", &unexportedMethod{}, ErrInvalidHandler},
		{"marker without tag", &untaggedMarker{}, ErrInvalidHandler},
		{"unknown tag option", &badOption{}, ErrInvalidHandler},
		{"empty method name", &emptyTag{}, ErrInvalidHandler},
		{"two event parameters", &twoEvents{}, ErrInvalidHandler},
		{"no parameters", &noParams{}, ErrInvalidHandler},
		{"unsupported result", &badResult{}, ErrInvalidHandler},
		{"variadic", &variadicHandler{}, ErrInvalidHandler},
		{"veto result without veto marker", &undeclaredVeto{}, ErrVetoNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := discover(tt.registrant, nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr), "expected *ConfigError, got %T", err)
		})
	}
}

func TestRegister_RejectsWithoutPartialRegistration(t *testing.T) {
	bus := New()
	r := &twoEvents{}

	err := bus.Register(r)

	require.Error(t, err)
	assert.ErrorIs(t, bus.Unregister(r), ErrNotRegistered)
}

func TestConfigError_Message(t *testing.T) {
	err := &ConfigError{
		Type:   reflect.TypeFor[*badResult](),
		Method: "OnOrder",
		Reason: "results must be empty, error, or *VetoError",
		Err:    ErrInvalidHandler,
	}

	assert.Equal(t,
		"register *eventbus.badResult.OnOrder: invalid handler method: results must be empty, error, or *VetoError",
		err.Error())
}

// rootDecl declares a handler it does not implement; leafImpl, two levels
// down, provides the only implementation without a marker of its own.
type rootDecl struct {
	_ Subscribe `subscribe:"OnOrder"`
}

type midDecl struct {
	rootDecl
}

type leafImpl struct {
	midDecl

	trail *trail
}

func (l *leafImpl) OnOrder(e orderEvent) { l.trail.add("leaf:" + e.ID) }

func TestDiscover_MarkerOnDistantAncestor(t *testing.T) {
	tr := &trail{}
	bus := New()

	require.NoError(t, bus.Register(&leafImpl{trail: tr}))
	require.NoError(t, bus.Post(context.Background(), orderEvent{ID: "1"}))

	assert.Equal(t, []string{"leaf:1"}, tr.all())
}
