package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DatabaseClient talks to the backend's PostgREST relational API.
type DatabaseClient struct {
	client *Client
}

// From starts a query against a table.
func (d *DatabaseClient) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: d.client,
		table:  table,
		params: url.Values{},
	}
}

// QueryBuilder builds a single PostgREST request. Builders are not safe for
// concurrent use; start a fresh one per query.
type QueryBuilder struct {
	client *Client

	table  string
	method string
	body   []byte
	params url.Values

	prefer      []string
	count       string
	single      bool
	accessToken string
	serviceKey  bool

	err error
}

// Select lists the columns to return. Defaults to "*".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.method = "GET"
	if columns == "" {
		columns = "*"
	}
	q.params.Set("select", columns)
	return q
}

// Insert inserts one record or a slice of records.
func (q *QueryBuilder) Insert(data interface{}) *QueryBuilder {
	q.method = "POST"
	q.setBody(data)
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Upsert inserts records, merging duplicates on the given conflict columns.
func (q *QueryBuilder) Upsert(data interface{}, onConflict string) *QueryBuilder {
	q.method = "POST"
	q.setBody(data)
	q.prefer = append(q.prefer, "return=representation", "resolution=merge-duplicates")
	if onConflict != "" {
		q.params.Set("on_conflict", onConflict)
	}
	return q
}

// Update patches the rows matched by the filters.
func (q *QueryBuilder) Update(data interface{}) *QueryBuilder {
	q.method = "PATCH"
	q.setBody(data)
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Delete removes the rows matched by the filters.
func (q *QueryBuilder) Delete() *QueryBuilder {
	q.method = "DELETE"
	q.prefer = append(q.prefer, "return=representation")
	return q
}

func (q *QueryBuilder) setBody(data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		q.err = fmt.Errorf("marshal body: %w", err)
		return
	}
	q.body = body
}

// Eq filters on column = value.
func (q *QueryBuilder) Eq(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "eq."+formatValue(value))
	return q
}

// Neq filters on column != value.
func (q *QueryBuilder) Neq(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "neq."+formatValue(value))
	return q
}

// Gt filters on column > value.
func (q *QueryBuilder) Gt(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "gt."+formatValue(value))
	return q
}

// Gte filters on column >= value.
func (q *QueryBuilder) Gte(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "gte."+formatValue(value))
	return q
}

// Lt filters on column < value.
func (q *QueryBuilder) Lt(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "lt."+formatValue(value))
	return q
}

// Lte filters on column <= value.
func (q *QueryBuilder) Lte(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "lte."+formatValue(value))
	return q
}

// Like filters on a case-sensitive pattern, e.g. "%vase%".
func (q *QueryBuilder) Like(column, pattern string) *QueryBuilder {
	q.params.Add(column, "like."+pattern)
	return q
}

// ILike filters on a case-insensitive pattern, e.g. "%vase%".
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	q.params.Add(column, "ilike."+pattern)
	return q
}

// In filters on column being any of the values.
func (q *QueryBuilder) In(column string, values []string) *QueryBuilder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + v + `"`
	}
	q.params.Add(column, "in.("+strings.Join(quoted, ",")+")")
	return q
}

// Is filters on IS, for null and boolean checks.
func (q *QueryBuilder) Is(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, "is."+formatValue(value))
	return q
}

// Or combines filters disjunctively. Conditions use PostgREST syntax,
// e.g. "name.ilike.%vase%,description.ilike.%vase%".
func (q *QueryBuilder) Or(conditions string) *QueryBuilder {
	q.params.Add("or", "("+conditions+")")
	return q
}

// Order sorts by a column.
func (q *QueryBuilder) Order(column string, direction OrderDirection) *QueryBuilder {
	q.params.Add("order", column+"."+string(direction))
	return q
}

// Limit caps the number of rows returned.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Offset skips rows, for pagination.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Single requests exactly one row. Zero or multiple matches become an error.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count asks the backend to report the total row count disregarding limit
// and offset. Mode is typically "exact".
func (q *QueryBuilder) Count(mode string) *QueryBuilder {
	q.count = mode
	return q
}

// WithToken runs the query as the user behind the access token so row-level
// security applies to them.
func (q *QueryBuilder) WithToken(accessToken string) *QueryBuilder {
	q.accessToken = accessToken
	return q
}

// WithServiceKey runs the query with the service role key, bypassing
// row-level security.
func (q *QueryBuilder) WithServiceKey() *QueryBuilder {
	q.serviceKey = true
	return q
}

// Result is the outcome of an executed query.
type Result struct {
	// Data is the raw JSON response.
	Data []byte
	// Count is the total row count when Count was requested, else -1.
	Count int64
}

// Execute runs the query and returns the raw result.
func (q *QueryBuilder) Execute(ctx context.Context) (*Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.method == "" {
		q.method = "GET"
	}

	urlStr := q.client.restURL + "/" + q.table
	if encoded := q.params.Encode(); encoded != "" {
		urlStr += "?" + encoded
	}

	headers := make(map[string]string)
	prefer := q.prefer
	if q.count != "" {
		prefer = append(prefer, "count="+q.count)
	}
	if len(prefer) > 0 {
		headers["Prefer"] = strings.Join(prefer, ",")
	}
	if q.single {
		headers["Accept"] = "application/vnd.pgrst.object+json"
	}

	var resp *apiResponse
	var err error
	switch {
	case q.serviceKey:
		resp, err = q.client.requestWithServiceKey(ctx, q.method, urlStr, q.body, headers)
	case q.accessToken != "":
		resp, err = q.client.requestWithToken(ctx, q.method, urlStr, q.body, headers, q.accessToken)
	default:
		resp, err = q.client.request(ctx, q.method, urlStr, q.body, headers)
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.Body, resp.StatusCode)
	}

	return &Result{
		Data:  resp.Body,
		Count: parseContentRange(resp.Header.Get("Content-Range")),
	}, nil
}

// ExecuteInto runs the query and unmarshals the response into dest.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dest interface{}) (*Result, error) {
	res, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if dest != nil && len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, dest); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return res, nil
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parseContentRange extracts the total from a "0-9/42" style header.
// Returns -1 when absent or unparseable.
func parseContentRange(header string) int64 {
	if header == "" {
		return -1
	}
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return -1
	}
	total := header[idx+1:]
	if total == "*" {
		return -1
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
