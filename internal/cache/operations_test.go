package cache

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const todosQuery = `
	query {
		__typename
		todos {
			__typename
			id
			text
			complete
		}
	}
`

const toggleTodoMutation = `
	mutation($id: ID!) {
		__typename
		toggleTodo(id: $id) {
			__typename
			id
			text
			complete
		}
	}
`

const clearNameMutation = `
	mutation($id: ID!) {
		__typename
		clearName(id: $id) {
			__typename
			todo {
				__typename
				id
				text
				complete
			}
		}
	}
`

func todo(id, text string, complete bool) Data {
	return Data{"__typename": "Todo", "id": id, "text": text, "complete": complete}
}

func todosData() Data {
	return Data{
		"__typename": "Query",
		"todos": []any{
			todo("0", "Go to the shops", false),
			todo("1", "Pick up the kids", true),
			todo("2", "Install urql", false),
		},
	}
}

func TestWriteAndQueryTodos(t *testing.T) {
	store := New()
	todos := Request{Query: mustParseQuery(t, todosQuery)}

	writeRes := store.Write(todos, todosData())
	if diff := cmp.Diff(deps("Query.todos", "Todo:0", "Todo:1", "Todo:2"), writeRes.Dependencies); diff != "" {
		t.Fatalf("write dependencies mismatch (-want +got):\n%s", diff)
	}

	queryRes := store.Query(todos)
	require.False(t, queryRes.Partial)
	if diff := cmp.Diff(todosData(), queryRes.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(writeRes.Dependencies, queryRes.Dependencies); diff != "" {
		t.Fatalf("query dependencies mismatch (-want +got):\n%s", diff)
	}

	mutationRes := store.Write(
		Request{Query: mustParseQuery(t, toggleTodoMutation), Variables: map[string]any{"id": "2"}},
		Data{"__typename": "Mutation", "toggleTodo": todo("2", "Install urql", true)},
	)
	if diff := cmp.Diff(deps("Todo:2"), mutationRes.Dependencies); diff != "" {
		t.Fatalf("mutation dependencies mismatch (-want +got):\n%s", diff)
	}

	want := todosData()
	want["todos"].([]any)[2] = todo("2", "Install urql", true)
	queryRes = store.Query(todos)
	require.False(t, queryRes.Partial)
	if diff := cmp.Diff(want, queryRes.Data); diff != "" {
		t.Fatalf("data after toggle mismatch (-want +got):\n%s", diff)
	}

	nestedRes := store.Write(
		Request{Query: mustParseQuery(t, clearNameMutation), Variables: map[string]any{"id": "2"}},
		Data{
			"__typename": "Mutation",
			"clearName": Data{
				"__typename": "ClearName",
				"todo":       todo("2", "", true),
			},
		},
	)
	if diff := cmp.Diff(deps("Todo:2"), nestedRes.Dependencies); diff != "" {
		t.Fatalf("nested mutation dependencies mismatch (-want +got):\n%s", diff)
	}

	want["todos"].([]any)[2] = todo("2", "", true)
	queryRes = store.Query(todos)
	require.False(t, queryRes.Partial)
	if diff := cmp.Diff(want, queryRes.Data); diff != "" {
		t.Fatalf("data after nested mutation mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldResolvers(t *testing.T) {
	store := New(WithResolvers(ResolverConfig{
		"Todo": {
			"text": func(Data, map[string]any, *Cache, *ResolveInfo) any { return "hi" },
		},
	}))
	todos := Request{Query: mustParseQuery(t, todosQuery)}
	store.Write(todos, todosData())

	res := store.Query(todos)
	require.False(t, res.Partial)
	want := Data{
		"__typename": "Query",
		"todos": []any{
			todo("0", "hi", false),
			todo("1", "hi", true),
			todo("2", "hi", false),
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	store.Write(
		Request{Query: mustParseQuery(t, toggleTodoMutation), Variables: map[string]any{"id": "2"}},
		Data{"__typename": "Mutation", "toggleTodo": todo("2", "Install urql", true)},
	)
	want["todos"].([]any)[2] = todo("2", "hi", true)
	res = store.Query(todos)
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data after toggle mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdaterUpdatesQuery(t *testing.T) {
	todosDoc := mustParseQuery(t, todosQuery)
	var infos []*ResolveInfo
	store := New(WithUpdates(UpdatesConfig{
		"Mutation": {
			"toggleTodo": func(result Data, args map[string]any, c *Cache, info *ResolveInfo) {
				infos = append(infos, info)
				toggled := result["toggleTodo"].(Data)
				c.UpdateQuery(Request{Query: todosDoc}, func(data Data) Data {
					if data == nil {
						return nil
					}
					list := data["todos"].([]any)
					if toggled["id"] == "1" {
						prev := list[1].(Data)
						list[1] = Data{
							"__typename": "Todo",
							"id":         "1",
							"text":       prev["text"].(string) + " (Updated)",
							"complete":   toggled["complete"],
						}
						return data
					}
					i, _ := strconv.Atoi(args["id"].(string))
					list[i].(Data)["complete"] = toggled["complete"]
					return data
				})
			},
		},
	}))

	initial := Data{
		"__typename": "Query",
		"todos": []any{
			todo("0", "Go to the shops", false),
			todo("1", "Pick up the kids", false),
			todo("2", "Install urql", false),
		},
	}
	store.Write(Request{Query: todosDoc}, initial)

	toggle := mustParseQuery(t, toggleTodoMutation)
	res := store.Write(
		Request{Query: toggle, Variables: map[string]any{"id": "1"}},
		Data{"__typename": "Mutation", "toggleTodo": todo("1", "Pick up the kids", true)},
	)
	require.True(t, res.Dependencies.Has("Query.todos"), "writes made by updaters are reported")
	store.Write(
		Request{Query: toggle, Variables: map[string]any{"id": "2"}},
		Data{"__typename": "Mutation", "toggleTodo": todo("2", "Install urql", true)},
	)

	got := store.Query(Request{Query: todosDoc})
	require.False(t, got.Partial)
	want := Data{
		"__typename": "Query",
		"todos": []any{
			todo("0", "Go to the shops", false),
			todo("1", "Pick up the kids (Updated)", true),
			todo("2", "Install urql", true),
		},
	}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, infos, 2)
	require.Equal(t, "Mutation", infos[0].ParentTypeName)
	require.Equal(t, `Mutation.toggleTodo({"id":"1"})`, infos[0].ParentFieldKey)
	require.False(t, infos[0].Optimistic)
}

const getRootQuery = `
	query GetRoot {
		root {
			__typename
			id
			items {
				__typename
				edges {
					__typename
					node {
						__typename
						id
						name
					}
				}
			}
		}
	}
`

const updateItemMutation = `
	mutation UpdateItem($id: ID!) {
		updateItem(id: $id) {
			__typename
			item {
				__typename
				id
				name
			}
		}
	}
`

func relayData() Data {
	edge := func(id, name string) Data {
		return Data{
			"__typename": "ItemEdge",
			"node":       Data{"__typename": "Item", "id": id, "name": name},
		}
	}
	return Data{
		"root": Data{
			"__typename": "Root",
			"id":         "root",
			"items": Data{
				"__typename": "ItemConnection",
				"edges":      []any{edge("1", "Number One"), edge("2", "Number Two")},
			},
		},
	}
}

func itemName(t *testing.T, data Data, i int) any {
	t.Helper()
	edges := data["root"].(Data)["items"].(Data)["edges"].([]any)
	return edges[i].(Data)["node"].(Data)["name"]
}

func TestOptimisticUpdatesOnRelaySchema(t *testing.T) {
	logger, codes := newRecordingLogger()
	store := New(
		WithLogger(logger),
		WithOptimisticMutations(OptimisticConfig{
			"updateItem": func(args map[string]any, _ *Cache, info *ResolveInfo) any {
				require.True(t, info.Optimistic)
				return Data{
					"__typename": "UpdateItemPayload",
					"item": Data{
						"__typename": "Item",
						"id":         args["id"],
						"name":       "Offline",
					},
				}
			},
		}),
	)
	getRoot := Request{Query: mustParseQuery(t, getRootQuery)}
	store.Write(getRoot, relayData())
	require.Empty(t, *codes, "connections and edges are embedded without warnings")

	res := store.WriteOptimistic(Request{
		Query:     mustParseQuery(t, updateItemMutation),
		Variables: map[string]any{"id": "2"},
	}, 1)
	if diff := cmp.Diff(deps("Item:2"), res.Dependencies); diff != "" {
		t.Fatalf("optimistic dependencies mismatch (-want +got):\n%s", diff)
	}

	optimistic := store.Query(getRoot)
	require.False(t, optimistic.Partial)
	require.Equal(t, "Offline", itemName(t, optimistic.Data, 1))

	base := store.Query(getRoot, BaseOnly())
	require.Equal(t, "Number Two", itemName(t, base.Data, 1))

	store.RevertOptimistic(1)
	reverted := store.Query(getRoot)
	require.False(t, reverted.Partial)
	require.NotNil(t, reverted.Data)
	require.Equal(t, "Number Two", itemName(t, reverted.Data, 1))
	require.Empty(t, store.OptimisticLayers())
}

const itemQuery = `
	{
		todo {
			__typename
			id
			complete
			text
		}
	}
`

const paginationQuery = `
	query {
		todos {
			__typename
			edges {
				__typename
				node {
					__typename
					id
					complete
					text
				}
			}
			pageInfo {
				__typename
				hasNextPage
				endCursor
			}
		}
	}
`

func paginatedTodo(node any) Data {
	return Data{
		"__typename": "Query",
		"todos": Data{
			"__typename": "TodosConnection",
			"edges": []any{
				Data{"__typename": "TodoEdge", "node": node},
			},
			"pageInfo": Data{"__typename": "PageInfo", "hasNextPage": true, "endCursor": "1"},
		},
	}
}

func TestResolverNestedUnkeyedData(t *testing.T) {
	tests := []struct {
		name string
		node func(c *Cache) any
		want Data
	}{
		{
			name: "object merged over stored entity",
			node: func(*Cache) any {
				return Data{"__typename": "Todo", "id": "1", "complete": true}
			},
			want: todo("1", "Example", true),
		},
		{
			name: "embedded entity key",
			node: func(c *Cache) any {
				return c.KeyOfEntity(Data{"__typename": "Todo", "id": "1"})
			},
			want: todo("1", "Example", false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New(WithResolvers(ResolverConfig{
				"Query": {
					"todos": func(_ Data, _ map[string]any, c *Cache, _ *ResolveInfo) any {
						return paginatedTodo(tt.node(c))["todos"]
					},
				},
			}))
			store.Write(Request{Query: mustParseQuery(t, itemQuery)}, Data{
				"__typename": "Query",
				"todo":       todo("1", "Example", false),
			})

			res := store.Query(Request{Query: mustParseQuery(t, paginationQuery)})
			require.False(t, res.Partial)
			if diff := cmp.Diff(paginatedTodo(tt.want), res.Data); diff != "" {
				t.Fatalf("data mismatch (-want +got):\n%s", diff)
			}
			require.True(t, res.Dependencies.Has("Todo:1"))
		})
	}
}
