package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/config"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/embed"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

var fixture = map[string]string{
	"src/user.js": "export class User {}\nexport function getUser() { return new User(); }\n",
	"src/app.js": "import { User, getUser } from './user';\n\n" +
		"export class App extends User {}\nfunction main() { getUser(); }\n",
}

const (
	userClass = "Class:src/user.js:User:1"
	getUserFn = "Function:src/user.js:getUser:2"
	appClass  = "Class:src/app.js:App:3"
	mainFn    = "Function:src/app.js:main:4"
)

func setupRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	return NewServer(s, opts)
}

// indexedServer returns a server with the fixture indexed, plus its project.
func indexedServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := newTestServer(t, Options{})
	dir := setupRepo(t, fixture)
	out := call(t, srv.handleIndexRepository, map[string]any{"repo_path": dir})
	return srv, out["project"].(string)
}

func request(t *testing.T, args map[string]any) *mcp.CallToolRequest {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	return &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: raw}}
}

type handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

// call runs h and decodes its JSON payload, failing on a tool error.
func call(t *testing.T, h handler, args map[string]any) map[string]any {
	t.Helper()
	res, err := h(context.Background(), request(t, args))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode %q: %v", resultText(t, res), err)
	}
	return out
}

// callErr runs h and returns its error text, failing if it succeeded.
func callErr(t *testing.T, h handler, args map[string]any) string {
	t.Helper()
	res, err := h(context.Background(), request(t, args))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatalf("expected a tool error, got %s", resultText(t, res))
	}
	return resultText(t, res)
}

func ids(t *testing.T, v any) []string {
	t.Helper()
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		m := item.(map[string]any)
		if node, ok := m["node"].(map[string]any); ok {
			m = node
		}
		out = append(out, m["id"].(string))
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestIndexRepository(t *testing.T) {
	srv := newTestServer(t, Options{})
	dir := setupRepo(t, fixture)

	out := call(t, srv.handleIndexRepository, map[string]any{"repo_path": dir})
	if out["project"] != filepath.Base(dir) {
		t.Errorf("project = %v", out["project"])
	}
	if out["files"].(float64) != 2 {
		t.Errorf("files = %v, want 2", out["files"])
	}
	if out["entities"].(float64) < 6 {
		t.Errorf("entities = %v, want at least 6", out["entities"])
	}
	if out["up_to_date"] != false {
		t.Errorf("first run reported up to date")
	}

	again := call(t, srv.handleIndexRepository, map[string]any{"repo_path": dir})
	if again["up_to_date"] != true {
		t.Errorf("second run up_to_date = %v", again["up_to_date"])
	}
	if again["entities"] != out["entities"] {
		t.Errorf("entities changed on a no-op run: %v -> %v", out["entities"], again["entities"])
	}

	forced := call(t, srv.handleIndexRepository, map[string]any{"repo_path": dir, "force": true})
	if forced["up_to_date"] == true {
		t.Error("forced run was skipped")
	}
}

func TestIndexRepositoryErrors(t *testing.T) {
	srv := newTestServer(t, Options{})
	if msg := callErr(t, srv.handleIndexRepository, map[string]any{}); !strings.Contains(msg, "repo_path") {
		t.Errorf("error = %q", msg)
	}
	missing := filepath.Join(t.TempDir(), "nope")
	callErr(t, srv.handleIndexRepository, map[string]any{"repo_path": missing})

	bad := config.Default()
	bad.Resolve.TieBreak = "coin_flip"
	srv = newTestServer(t, Options{Config: bad})
	callErr(t, srv.handleIndexRepository, map[string]any{"repo_path": t.TempDir()})
}

func TestResolveProject(t *testing.T) {
	srv := newTestServer(t, Options{})
	if msg := callErr(t, srv.handleGetGraphSchema, map[string]any{}); !strings.Contains(msg, "index_repository") {
		t.Errorf("error = %q", msg)
	}

	srv, project := indexedServer(t)
	out := call(t, srv.handleGetGraphSchema, map[string]any{})
	if out["project"] != project {
		t.Errorf("default project = %v, want %s", out["project"], project)
	}
	if msg := callErr(t, srv.handleGetGraphSchema, map[string]any{"project": "ghost"}); !strings.Contains(msg, "not found") {
		t.Errorf("error = %q", msg)
	}

	// A fresh server over the same store falls back to the only project.
	other := NewServer(srv.store, Options{Config: config.Default()})
	out = call(t, other.handleGetGraphSchema, map[string]any{})
	if out["project"] != project {
		t.Errorf("single project = %v, want %s", out["project"], project)
	}
}

func TestGetCodeByName(t *testing.T) {
	srv, _ := indexedServer(t)

	out := call(t, srv.handleGetCodeByName, map[string]any{"name": "User"})
	got := ids(t, out["results"])
	if len(got) != 1 || got[0] != userClass {
		t.Errorf("results = %v, want [%s]", got, userClass)
	}
	first := out["results"].([]any)[0].(map[string]any)
	if first["file_path"] != "src/user.js" || first["start_line"].(float64) != 1 {
		t.Errorf("location = %v:%v", first["file_path"], first["start_line"])
	}
	if !strings.Contains(first["excerpt"].(string), "class User") {
		t.Errorf("excerpt = %q", first["excerpt"])
	}

	callErr(t, srv.handleGetCodeByName, map[string]any{"name": "User", "kind": "Function"})
	callErr(t, srv.handleGetCodeByName, map[string]any{"name": "Nobody"})
	callErr(t, srv.handleGetCodeByName, map[string]any{})
}

func TestFindCallersAndCallees(t *testing.T) {
	srv, _ := indexedServer(t)

	out := call(t, srv.handleFindCallers, map[string]any{"name": "getUser"})
	results := out["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	visited := ids(t, results[0].(map[string]any)["visited"])
	if !contains(visited, mainFn) {
		t.Errorf("callers of getUser = %v, want %s", visited, mainFn)
	}
	impact, _ := out["impact"].(map[string]any)
	if critical, _ := impact["critical"].(float64); critical < 1 {
		t.Errorf("impact = %v", out["impact"])
	}

	out = call(t, srv.handleFindCallees, map[string]any{"name": mainFn, "depth": 3})
	if out["depth"].(float64) != 3 {
		t.Errorf("depth = %v", out["depth"])
	}
	if _, ok := out["impact"]; ok {
		t.Error("callees should carry no impact summary")
	}
	visited = ids(t, out["results"].([]any)[0].(map[string]any)["visited"])
	if !contains(visited, getUserFn) {
		t.Errorf("callees of main = %v, want %s", visited, getUserFn)
	}

	out = call(t, srv.handleFindCallees, map[string]any{"name": "main", "depth": 99})
	if out["depth"].(float64) != 5 {
		t.Errorf("depth not clamped: %v", out["depth"])
	}
	callErr(t, srv.handleFindCallers, map[string]any{"name": "User"})
}

func TestFindClassInheritance(t *testing.T) {
	srv, _ := indexedServer(t)

	out := call(t, srv.handleFindInheritance, map[string]any{"name": "App"})
	h := out["results"].([]any)[0].(map[string]any)
	if parents := ids(t, h["parents"]); !contains(parents, userClass) {
		t.Errorf("parents of App = %v", parents)
	}

	out = call(t, srv.handleFindInheritance, map[string]any{"name": "User"})
	h = out["results"].([]any)[0].(map[string]any)
	if children := ids(t, h["children"]); !contains(children, appClass) {
		t.Errorf("children of User = %v", children)
	}
	callErr(t, srv.handleFindInheritance, map[string]any{"name": "getUser"})
}

func TestFindFileDependencies(t *testing.T) {
	srv, _ := indexedServer(t)

	out := call(t, srv.handleFindFileDependencies, map[string]any{"file_path": "./src/app.js"})
	deps := out["deps"].(map[string]any)
	imports := ids(t, deps["imports"])
	if !contains(imports, userClass) || !contains(imports, getUserFn) {
		t.Errorf("imports of app.js = %v", imports)
	}

	out = call(t, srv.handleFindFileDependencies, map[string]any{"file_path": "src/user.js"})
	deps = out["deps"].(map[string]any)
	if importers := ids(t, deps["imported_by"]); !contains(importers, "File:src/app.js") {
		t.Errorf("importers of user.js = %v", importers)
	}
	callErr(t, srv.handleFindFileDependencies, map[string]any{"file_path": "src/missing.js"})
}

func TestSearchCodeText(t *testing.T) {
	srv, _ := indexedServer(t)

	out := call(t, srv.handleSearchCode, map[string]any{"query": "getUser"})
	if out["mode"] != searchText {
		t.Errorf("mode = %v", out["mode"])
	}
	got := ids(t, out["results"])
	if len(got) == 0 || got[0] != getUserFn {
		t.Errorf("results = %v, want %s first", got, getUserFn)
	}

	out = call(t, srv.handleSearchCode, map[string]any{"query": "User", "kind": "Class", "file_pattern": "src/app*"})
	if got := ids(t, out["results"]); len(got) != 1 || got[0] != appClass {
		t.Errorf("filtered results = %v", got)
	}

	out = call(t, srv.handleSearchCode, map[string]any{"query": "zzz-nothing"})
	if out["total"].(float64) != 0 {
		t.Errorf("total = %v", out["total"])
	}
	callErr(t, srv.handleSearchCode, map[string]any{"query": " "})
}

// keywordEmbedder maps text onto two axes: record lookups and apps.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	v := []float32{0.01, 0.01}
	if strings.Contains(text, "new user") || strings.Contains(text, "record") {
		v[0] = 1
	}
	if strings.Contains(text, "app") {
		v[1] = 1
	}
	return v, nil
}

func TestSearchCodeSemantic(t *testing.T) {
	en, err := embed.NewEnricher(keywordEmbedder{}, embed.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, Options{Enricher: en, Model: "keyword"})
	dir := setupRepo(t, fixture)
	call(t, srv.handleIndexRepository, map[string]any{"repo_path": dir})

	out := call(t, srv.handleSearchCode, map[string]any{"query": "fetch a record", "limit": 1})
	if out["mode"] != searchSemantic {
		t.Fatalf("mode = %v", out["mode"])
	}
	if got := ids(t, out["results"]); len(got) != 1 || got[0] != getUserFn {
		t.Errorf("results = %v, want [%s]", got, getUserFn)
	}

	// Filters force text search.
	out = call(t, srv.handleSearchCode, map[string]any{"query": "App", "kind": "Class"})
	if out["mode"] != searchText {
		t.Errorf("filtered mode = %v", out["mode"])
	}

	schema := call(t, srv.handleGetGraphSchema, map[string]any{})
	if n := schema["schema"].(map[string]any)["embeddings"].(float64); n == 0 {
		t.Error("no embeddings stored")
	}
}

func TestListAndDeleteProjects(t *testing.T) {
	srv, project := indexedServer(t)

	res, err := srv.handleListProjects(context.Background(), request(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	var list []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["name"] != project || list[0]["entities"].(float64) == 0 {
		t.Errorf("projects = %v", list)
	}

	callErr(t, srv.handleDeleteProject, map[string]any{"project_name": "ghost"})
	out := call(t, srv.handleDeleteProject, map[string]any{"project_name": project})
	if out["deleted"] != project {
		t.Errorf("deleted = %v", out["deleted"])
	}
	if n, _ := srv.store.CountNodes(project); n != 0 {
		t.Errorf("%d entities survived delete", n)
	}
	callErr(t, srv.handleGetGraphSchema, map[string]any{})
}

func TestToolsOverTransport(t *testing.T) {
	srv := newTestServer(t, Options{})
	dir := setupRepo(t, fixture)
	ctx := context.Background()

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{
		"index_repository", "search_code", "get_code_by_name", "find_function_callers",
		"find_function_callees", "find_class_inheritance", "find_file_dependencies",
		"get_graph_schema", "execute_cypher_query", "list_projects", "delete_project",
	} {
		if !contains(names, want) {
			t.Errorf("tool %s not registered; got %v", want, names)
		}
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "index_repository",
		Arguments: map[string]any{"repo_path": dir},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("index_repository: %s", resultText(t, res))
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_code_by_name",
		Arguments: map[string]any{"name": "App"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), appClass) {
		t.Errorf("get_code_by_name = %s", resultText(t, res))
	}

	examples, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: examplesURI})
	if err != nil {
		t.Fatal(err)
	}
	if len(examples.Contents) != 1 || !strings.Contains(examples.Contents[0].Text, "MATCH") {
		t.Errorf("cypher://examples = %+v", examples.Contents)
	}
	schema, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaURI})
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Contents) != 1 || !strings.Contains(schema.Contents[0].Text, "EXTENDS") {
		t.Errorf("schema://kg = %+v", schema.Contents)
	}

	prompt, err := cs.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "code_understanding_prompt",
		Arguments: map[string]string{"code_element": "App", "element_type": "Class"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(prompt.Messages) != 1 {
		t.Fatalf("prompt messages = %+v", prompt.Messages)
	}
	if text, ok := prompt.Messages[0].Content.(*mcp.TextContent); !ok || !strings.Contains(text.Text, "Name: App") {
		t.Errorf("prompt content = %+v", prompt.Messages[0].Content)
	}
	if _, err := cs.GetPrompt(ctx, &mcp.GetPromptParams{Name: "code_search_prompt"}); err == nil {
		t.Error("code_search_prompt without a query should fail")
	}
}

func TestExecuteCypherQuery(t *testing.T) {
	srv, project := indexedServer(t)

	out := call(t, srv.handleExecuteCypherQuery, map[string]any{
		"query":      "MATCH (a)-[:CALLS]->(b) WHERE b.name = $name RETURN a.id",
		"parameters": map[string]any{"name": "getUser"},
	})
	if out["project"] != project {
		t.Errorf("project = %v, want %s", out["project"], project)
	}
	rows, _ := out["rows"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["a.id"] != mainFn {
		t.Errorf("rows = %v", out["rows"])
	}

	out = call(t, srv.handleExecuteCypherQuery, map[string]any{
		"query":    "MATCH (c:Class) RETURN c.id ORDER BY c.id",
		"max_rows": 1,
	})
	if out["truncated"] != true || out["total"] != float64(1) {
		t.Errorf("capped result = %v", out)
	}

	if msg := callErr(t, srv.handleExecuteCypherQuery, map[string]any{"query": "MATCH (n) DELETE n"}); !strings.Contains(msg, "query error") {
		t.Errorf("bad query error = %s", msg)
	}
	if msg := callErr(t, srv.handleExecuteCypherQuery, map[string]any{}); !strings.Contains(msg, "query is required") {
		t.Errorf("missing query error = %s", msg)
	}
}
