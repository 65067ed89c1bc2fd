package dhtring

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNode(t *testing.T) {
	var (
		positions = map[string]uint32{"A": 1000, "B": 2000, "C": 3000, "D": 1800, "Y": 1000}
		newCtx    = func() context.Context {
			return context.Background()
		}
	)

	t.Run("should reject invalid joins and leave the ring unchanged", func(t *testing.T) {
		var tests = []struct {
			name    string
			node    string
			addr    Address
			wantErr error
		}{
			{name: "duplicate name", node: "A", addr: localAddr(12000), wantErr: ErrDuplicateName},
			{name: "port in use", node: "Z", addr: Address{Host: "127.0.0.1", Port: 11211}, wantErr: ErrPortInUse},
			{name: "port out of range", node: "Z", addr: localAddr(0), wantErr: ErrInvalidAddress},
			{name: "empty host", node: "Z", addr: Address{Port: 12000}, wantErr: ErrInvalidAddress},
			{name: "invalid name", node: "bad name", addr: localAddr(12000), wantErr: ErrInvalidNodeName},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				// Arrange
				var sut, _ = newTestService(WithHashFunc(positionHash(positions)))
				mustAddNodes(t, sut, "A")

				// Act
				var err = sut.AddNode(newCtx(), tt.node, tt.addr)

				// Assert
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, sut.Nodes(), 1)
			})
		}
	})

	t.Run("should fail with connection error when store is down", func(t *testing.T) {
		// Arrange
		var sut, connector = newTestService(WithHashFunc(positionHash(positions)))
		mustAddNodes(t, sut, "A")
		require.NoError(t, sut.Put(newCtx(), "k@500", "v"))
		connector.SetDown(localAddr(12000), true)

		// Act
		var err = sut.AddNode(newCtx(), "B", localAddr(12000))

		// Assert
		assert.ErrorIs(t, err, ErrConnection)
		assert.Len(t, sut.Nodes(), 1)
		assertPlacement(t, sut, connector, map[string]string{"k@500": "v"})
	})

	t.Run("should reject position collision before connecting", func(t *testing.T) {
		// Arrange
		var sut, connector = newTestService(WithHashFunc(positionHash(positions)))
		mustAddNodes(t, sut, "A")

		// Act
		var err = sut.AddNode(newCtx(), "Y", localAddr(12000))

		// Assert
		assert.ErrorIs(t, err, ErrPositionCollision)
		assert.Len(t, sut.Nodes(), 1)
		assert.False(t, connector.Store(localAddr(12000)).Has("name"), "rejected store should not carry an identity marker")
	})

	t.Run("should record node name on its store", func(t *testing.T) {
		// Arrange
		var sut, connector = newTestService(WithIdentityKey("__node"))

		// Act
		var err = sut.AddNode(newCtx(), "m1", localAddr(11211))

		// Assert
		require.NoError(t, err)
		var marker, getErr = connector.Store(localAddr(11211)).Get(newCtx(), "__node")
		require.NoError(t, getErr)
		assert.Equal(t, "m1", marker)
	})

	t.Run("should replicate existing keys to second node", func(t *testing.T) {
		// Arrange
		var (
			sut, connector = newTestService(WithHashFunc(positionHash(positions)))
			expected       = map[string]string{"k@500": "a", "k@1500": "b", "k@2500": "c"}
		)
		mustAddNodes(t, sut, "A")
		for key, value := range expected {
			require.NoError(t, sut.Put(newCtx(), key, value))
		}

		// Act
		var err = sut.AddNode(newCtx(), "B", localAddr(11300))

		// Assert
		require.NoError(t, err)
		assertPlacement(t, sut, connector, expected)
		var b, _ = sut.Node("B")
		assert.Equal(t, 3, b.LocalLen())
	})

	t.Run("should move keys onto joining node and drop stale copies", func(t *testing.T) {
		// Arrange
		var (
			sut, connector = newTestService(WithHashFunc(positionHash(positions)))
			expected       = map[string]string{"k@500": "a", "k@1500": "b", "k@2500": "c"}
		)
		mustAddNodes(t, sut, "A")
		for key, value := range expected {
			require.NoError(t, sut.Put(newCtx(), key, value))
		}
		require.NoError(t, sut.AddNode(newCtx(), "B", localAddr(11300)))

		// Act
		var err = sut.AddNode(newCtx(), "C", localAddr(11301))

		// Assert
		require.NoError(t, err)
		assertPlacement(t, sut, connector, expected)

		var a, _ = sut.Node("A")
		var b, _ = sut.Node("B")
		var c, _ = sut.Node("C")
		assert.Equal(t, []string{"k@2500", "k@500"}, a.LocalKeys())
		assert.Equal(t, []string{"k@1500", "k@500"}, b.LocalKeys())
		assert.Equal(t, []string{"k@1500", "k@2500"}, c.LocalKeys())
	})

	t.Run("should roll back join when copying to new node fails", func(t *testing.T) {
		// Arrange
		var (
			memory           = NewMemoryConnector()
			connector, flaky = flakyConnector(memory, localAddr(12000))
			sut              = NewService(connector, WithHashFunc(positionHash(positions)))
			expected         = map[string]string{"k@500": "a", "k@1500": "b", "k@2500": "c"}
		)
		mustAddNodes(t, sut, "A", "B", "C")
		for key, value := range expected {
			require.NoError(t, sut.Put(newCtx(), key, value))
		}
		flaky.failSets.Store(true)

		// Act
		var err = sut.AddNode(newCtx(), "D", localAddr(12000))

		// Assert
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		var _, ok = sut.Node("D")
		assert.False(t, ok, "failed node should not stay in the ring")
		assert.Len(t, sut.Nodes(), 3)
		assertPlacement(t, sut, memory, expected)
		var balance, balanceErr = sut.Balance()
		require.NoError(t, balanceErr)
		assert.Equal(t, 2*len(expected), balance.Entries)
	})
}

func TestRemoveNode(t *testing.T) {
	var (
		positions = map[string]uint32{"A": 1000, "B": 2000, "C": 3000}
		newCtx    = func() context.Context {
			return context.Background()
		}
		newService = func(t *testing.T) (*Service, *MemoryConnector) {
			var sut, connector = newTestService(WithHashFunc(positionHash(positions)))
			mustAddNodes(t, sut, "A", "B", "C")
			return sut, connector
		}
	)

	t.Run("should fail for unknown node", func(t *testing.T) {
		// Arrange
		var sut, _ = newService(t)

		// Act
		var err = sut.RemoveNode(newCtx(), "Z")

		// Assert
		assert.ErrorIs(t, err, ErrNodeNotFound)
		assert.Len(t, sut.Nodes(), 3)
	})

	t.Run("should keep keys readable after primary store dies", func(t *testing.T) {
		// Arrange
		var sut, connector = newService(t)
		require.NoError(t, sut.Put(newCtx(), "42@1500", "x"))
		var b, _ = sut.Node("B")
		connector.SetDown(b.Address(), true)

		// Act
		var err = sut.RemoveNode(newCtx(), "B")

		// Assert
		require.NoError(t, err)
		var value, found, getErr = sut.Get(newCtx(), "42@1500")
		require.NoError(t, getErr)
		assert.True(t, found)
		assert.Equal(t, "x", value)
		assertPlacement(t, sut, connector, map[string]string{"42@1500": "x"})
	})

	t.Run("should re-replicate keys of neighbouring arcs", func(t *testing.T) {
		// Arrange
		var (
			sut, connector = newService(t)
			expected       = map[string]string{"k@500": "a", "k@1500": "b", "k@2500": "c", "k@3500": "d"}
		)
		for key, value := range expected {
			require.NoError(t, sut.Put(newCtx(), key, value))
		}

		// Act
		var err = sut.RemoveNode(newCtx(), "A")

		// Assert
		require.NoError(t, err)
		assert.Len(t, sut.Nodes(), 2)
		assertPlacement(t, sut, connector, expected)
	})

	t.Run("should abort removal when a new owner is unreachable", func(t *testing.T) {
		// Arrange
		var sut, connector = newService(t)
		require.NoError(t, sut.Put(newCtx(), "k@1500", "v"))
		var a, _ = sut.Node("A")
		connector.SetDown(a.Address(), true)

		// Act
		var err = sut.RemoveNode(newCtx(), "B")

		// Assert
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		var _, ok = sut.Node("B")
		assert.True(t, ok, "node should stay in the ring when rebalancing fails")
		var b, _ = sut.Node("B")
		var value, held = b.LocalGet("k@1500")
		assert.True(t, held, "nothing is dropped from an aborted removal")
		assert.Equal(t, "v", value)

		connector.SetDown(a.Address(), false)
		var got, found, getErr = sut.Get(newCtx(), "k@1500")
		require.NoError(t, getErr)
		assert.True(t, found)
		assert.Equal(t, "v", got)
	})

	t.Run("should empty the ring when the last node leaves", func(t *testing.T) {
		// Arrange
		var sut, _ = newTestService(WithHashFunc(positionHash(positions)))
		mustAddNodes(t, sut, "A")
		require.NoError(t, sut.Put(newCtx(), "k", "v"))

		// Act
		var err = sut.RemoveNode(newCtx(), "A")

		// Assert
		require.NoError(t, err)
		assert.Empty(t, sut.Nodes())
		assert.ErrorIs(t, sut.Put(newCtx(), "k", "v"), ErrEmptyRing)
		var _, _, getErr = sut.Get(newCtx(), "k")
		assert.ErrorIs(t, getErr, ErrEmptyRing)
	})
}

func TestRebalanceFlow(t *testing.T) {
	t.Run("should keep every key on its owners through joins and leaves", func(t *testing.T) {
		// Arrange
		var (
			ctx            = context.Background()
			sut, connector = newTestService()
			expected       = make(map[string]string)
		)
		mustAddNodes(t, sut, "m1", "m2", "m3", "m4")
		for i := 100; i < 200; i++ {
			var key = fmt.Sprintf("%d", i)
			expected[key] = fmt.Sprintf("value-%d", i)
			require.NoError(t, sut.Put(ctx, key, expected[key]))
		}
		assertPlacement(t, sut, connector, expected)

		// Act
		require.NoError(t, sut.RemoveNode(ctx, "m1"))
		assertPlacement(t, sut, connector, expected)
		require.NoError(t, sut.AddNode(ctx, "m5", localAddr(11215)))

		// Assert
		assertPlacement(t, sut, connector, expected)

		var balance, err = sut.Balance()
		require.NoError(t, err)
		assert.Equal(t, 4, balance.Nodes)
		assert.Equal(t, 2*len(expected), balance.Entries, "every key is held exactly twice")
	})
}

func TestRebalanceAfterFailures(t *testing.T) {
	var (
		positions = map[string]uint32{"A": 1000, "B": 2000, "C": 3000, "D": 4000, "E": 2500}
		newCtx    = func() context.Context {
			return context.Background()
		}
		// C listens on 11213 and can be made to fail data writes.
		newService = func(t *testing.T) (*Service, *MemoryConnector, *flakyStore) {
			var memory = NewMemoryConnector()
			var connector, flaky = flakyConnector(memory, localAddr(11213))
			var sut = NewService(connector, WithHashFunc(positionHash(positions)))
			mustAddNodes(t, sut, "A", "B", "C", "D")
			return sut, memory, flaky
		}
		// partialWrite leaves C, the replica of k@1500, holding v1 while B holds v2.
		partialWrite = func(t *testing.T, sut *Service, flaky *flakyStore) {
			require.NoError(t, sut.Put(newCtx(), "k@1500", "v1"))
			flaky.failSets.Store(true)
			require.ErrorIs(t, sut.Put(newCtx(), "k@1500", "v2"), ErrPartialWrite)
			flaky.failSets.Store(false)
		}
	)

	t.Run("should keep newest value when an unrelated node leaves", func(t *testing.T) {
		// Arrange
		var sut, memory, flaky = newService(t)
		partialWrite(t, sut, flaky)

		// Act
		var err = sut.RemoveNode(newCtx(), "D")

		// Assert
		require.NoError(t, err)
		var value, found, getErr = sut.Get(newCtx(), "k@1500")
		require.NoError(t, getErr)
		assert.True(t, found)
		assert.Equal(t, "v2", value)
		assertPlacement(t, sut, memory, map[string]string{"k@1500": "v2"})
	})

	t.Run("should keep newest value when a node joins next to a stale replica", func(t *testing.T) {
		// Arrange
		var sut, memory, flaky = newService(t)
		partialWrite(t, sut, flaky)

		// Act
		var err = sut.AddNode(newCtx(), "E", localAddr(11215))

		// Assert
		require.NoError(t, err)
		assertPlacement(t, sut, memory, map[string]string{"k@1500": "v2"})
		var balance, balanceErr = sut.Balance()
		require.NoError(t, balanceErr)
		assert.Equal(t, 2, balance.Entries)
	})

	t.Run("should undo copies made before an aborted removal", func(t *testing.T) {
		// Arrange
		var (
			sut, memory, flaky = newService(t)
			expected           = map[string]string{"a@500": "x", "a@1500": "y"}
		)
		for key, value := range expected {
			require.NoError(t, sut.Put(newCtx(), key, value))
		}
		flaky.failSets.Store(true)

		// Act
		var err = sut.RemoveNode(newCtx(), "B")

		// Assert
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		var d, _ = sut.Node("D")
		assert.Empty(t, d.LocalKeys(), "D owns nothing once B is restored")
		flaky.failSets.Store(false)
		assertPlacement(t, sut, memory, expected)
		var balance, balanceErr = sut.Balance()
		require.NoError(t, balanceErr)
		assert.Equal(t, 2*len(expected), balance.Entries)
	})
}

func TestBootstrap(t *testing.T) {
	var (
		positions = map[string]uint32{"A": 1000, "B": 2000, "C": 3000, "Y": 1000}
		newCtx    = func() context.Context {
			return context.Background()
		}
		specs = func() []NodeSpec {
			return []NodeSpec{
				{Name: "A", Address: localAddr(11211)},
				{Name: "B", Address: localAddr(11212)},
				{Name: "C", Address: localAddr(11213)},
			}
		}
	)

	t.Run("should join every node", func(t *testing.T) {
		// Arrange
		var sut, connector = newTestService(WithHashFunc(positionHash(positions)))

		// Act
		var err = sut.Bootstrap(newCtx(), specs())

		// Assert
		require.NoError(t, err)
		var nodes = sut.Nodes()
		require.Len(t, nodes, 3)
		assert.Equal(t, "A", nodes[0].Name)
		assert.Equal(t, "C", nodes[2].Name)

		require.NoError(t, sut.Put(newCtx(), "k@1500", "v"))
		assertPlacement(t, sut, connector, map[string]string{"k@1500": "v"})
	})

	t.Run("should reject duplicates among specs", func(t *testing.T) {
		// Arrange
		var sut, _ = newTestService(WithHashFunc(positionHash(positions)))
		var duplicated = append(specs(), NodeSpec{Name: "A", Address: localAddr(11214)})
		var samePort = append(specs(), NodeSpec{Name: "D", Address: localAddr(11211)})

		// Act
		var dupErr = sut.Bootstrap(newCtx(), duplicated)
		var portErr = sut.Bootstrap(newCtx(), samePort)

		// Assert
		assert.ErrorIs(t, dupErr, ErrDuplicateName)
		assert.ErrorIs(t, portErr, ErrPortInUse)
		assert.Empty(t, sut.Nodes())
	})

	t.Run("should reject colliding specs before connecting", func(t *testing.T) {
		// Arrange
		var sut, connector = newTestService(WithHashFunc(positionHash(positions)))
		var colliding = append(specs(), NodeSpec{Name: "Y", Address: localAddr(11214)})

		// Act
		var err = sut.Bootstrap(newCtx(), colliding)

		// Assert
		assert.ErrorIs(t, err, ErrPositionCollision)
		assert.Empty(t, sut.Nodes())
		assert.False(t, connector.Store(localAddr(11211)).Has("name"), "nothing is dialed for a rejected bootstrap")
	})

	t.Run("should add nothing when one store is down", func(t *testing.T) {
		// Arrange
		var sut, connector = newTestService(WithHashFunc(positionHash(positions)))
		connector.SetDown(localAddr(11212), true)

		// Act
		var err = sut.Bootstrap(newCtx(), specs())

		// Assert
		assert.ErrorIs(t, err, ErrConnection)
		assert.Empty(t, sut.Nodes())
	})
}
