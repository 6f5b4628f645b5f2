package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/confinity/pkg/core"
)

type echo struct{}

func (echo) Invoke(s string) string { return s }

type adder struct{}

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (adder) Invoke(_ context.Context, args addArgs) (int, error) { return args.A + args.B, nil }

type noDispatch struct{}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("demo.Echo", echo{}))
	require.NoError(t, reg.Register("demo.Adder", func() *adder { return &adder{} }))

	target, err := reg.Resolve("demo.Echo")
	require.NoError(t, err)
	assert.Equal(t, "demo.Echo", target.Name)
	assert.Equal(t, "Invoke(string) string", target.Signature())

	target, err = reg.Resolve("demo.Adder")
	require.NoError(t, err)
	assert.True(t, target.HasContext)
}

func TestRegistry_ResolveCachesDescriptor(t *testing.T) {
	reg := New()
	reg.MustRegister("demo.Echo", echo{})

	a, err := reg.Resolve("demo.Echo")
	require.NoError(t, err)
	b, err := reg.Resolve("demo.Echo")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestRegistry_TypeNotFound(t *testing.T) {
	reg := New()
	reg.MustRegister("demo.Echo", echo{})

	for _, name := range []string{"demo.Missing", "", "demo.echo"} {
		_, err := reg.Resolve(name)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrTypeNotFound, name)
	}
}

func TestRegistry_ContractFailuresSurfaceOnResolve(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("needs.Args", func(dsn string) *adder { return &adder{} }))
	require.NoError(t, reg.Register("no.Invoke", noDispatch{}))

	_, err := reg.Resolve("needs.Args")
	assert.ErrorIs(t, err, core.ErrNotConstructible)

	_, err = reg.Resolve("no.Invoke")
	assert.ErrorIs(t, err, core.ErrDispatchMethodNotFound)

	// the failure is sticky
	_, err = reg.Resolve("no.Invoke")
	assert.ErrorIs(t, err, core.ErrDispatchMethodNotFound)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	reg := New()

	err := reg.Register("1bad", echo{})
	assert.ErrorIs(t, err, core.ErrInvalidTargetName)

	require.NoError(t, reg.Register("demo.Echo", echo{}))
	err = reg.Register("demo.Echo", echo{})
	assert.ErrorIs(t, err, core.ErrDuplicateTarget)

	assert.Panics(t, func() { reg.MustRegister("demo.Echo", echo{}) })
}

func TestRegistry_Names(t *testing.T) {
	reg := New()
	reg.MustRegister("b.Second", echo{})
	reg.MustRegister("a.First", echo{})
	reg.MustRegister("c.Third", echo{})

	assert.Equal(t, []string{"a.First", "b.Second", "c.Third"}, reg.Names())
	assert.Empty(t, New().Names())
}

func TestRegistry_Validate(t *testing.T) {
	reg := New()
	reg.MustRegister("demo.Echo", echo{})
	require.NoError(t, reg.Validate())

	reg.MustRegister("zz.Broken", noDispatch{})
	err := reg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDispatchMethodNotFound)
	assert.Contains(t, err.Error(), "zz.Broken")
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	reg := New()
	for i := 0; i < 10; i++ {
		reg.MustRegister(fmt.Sprintf("demo.Echo%d", i), echo{})
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Resolve(fmt.Sprintf("demo.Echo%d", i%10))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestDefaultRegistry(t *testing.T) {
	require.NoError(t, Register("registry.test.Echo", echo{}))
	assert.Contains(t, Default().Names(), "registry.test.Echo")

	target, err := Default().Resolve("registry.test.Echo")
	require.NoError(t, err)
	assert.NotNil(t, target)

	assert.Panics(t, func() { MustRegister("registry.test.Echo", echo{}) })
}
