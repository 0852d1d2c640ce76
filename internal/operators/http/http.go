package httpoperator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the operator.
const ClassName = "SimpleHttpOperator"

const (
	defaultConnID  = "http_default"
	defaultTimeout = 60 * time.Second
)

// Params are the SimpleHttpOperator keyword arguments.
type Params struct {
	Endpoint       string            `yaml:"endpoint"`
	Method         string            `yaml:"method" validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Data           any               `yaml:"data"`
	Headers        map[string]string `yaml:"headers"`
	ResponseCheck  string            `yaml:"response_check"`
	ResponseFilter string            `yaml:"response_filter"`
	ExtraOptions   ExtraOptions      `yaml:"extra_options"`
	HTTPConnID     string            `yaml:"http_conn_id"`
	LogResponse    bool              `yaml:"log_response"`
}

// ExtraOptions tune the request the way the requests library options did.
type ExtraOptions struct {
	Timeout       float64 `yaml:"timeout" validate:"gte=0"`
	CheckResponse *bool   `yaml:"check_response"`
}

// Operator calls an endpoint on an HTTP system.
type Operator struct {
	operator.BaseOperator
	Params Params

	// Client overrides the HTTP client used for the request.
	Client *http.Client

	check *regexp.Regexp
}

// New constructs the operator from its keyword arguments.
func New(args operator.Args, deps operator.Deps) (operator.Operator, error) {
	base, err := operator.NewBase(args, deps, true)
	if err != nil {
		return nil, err
	}
	if m, ok := args["method"].(string); ok {
		args = args.Clone()
		args["method"] = strings.ToUpper(m)
	}
	params := Params{Method: http.MethodPost, HTTPConnID: defaultConnID}
	if err := args.Decode(&params); err != nil {
		return nil, err
	}

	op := &Operator{BaseOperator: base, Params: params}
	if params.ResponseCheck != "" {
		op.check, err = regexp.Compile(params.ResponseCheck)
		if err != nil {
			return nil, execerrors.NewValidationError("response_check", "invalid pattern", err)
		}
	}
	return op, nil
}

// Register adds the operator to reg.
func Register(reg *operator.Registry) error {
	return reg.Register(operator.Registration{
		ClassName: ClassName,
		Aliases: []string{
			"airflow.providers.http.operators.http:SimpleHttpOperator",
			"airflow.operators.http_operator:SimpleHttpOperator",
		},
		Description: "Calls an endpoint on an HTTP system to execute an action.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders the endpoint, header values and string data.
func (o *Operator) RenderTemplates(render func(string) (string, error)) error {
	if err := operator.RenderAll(render, &o.Params.Endpoint); err != nil {
		return err
	}
	for key, value := range o.Params.Headers {
		out, err := render(value)
		if err != nil {
			return err
		}
		o.Params.Headers[key] = out
	}
	switch data := o.Params.Data.(type) {
	case string:
		out, err := render(data)
		if err != nil {
			return err
		}
		o.Params.Data = out
	case map[string]any:
		for key, value := range data {
			if s, ok := value.(string); ok {
				out, err := render(s)
				if err != nil {
					return err
				}
				data[key] = out
			}
		}
	}
	return nil
}

// BaseURL derives the URL prefix from conn. A host that already carries a
// scheme is used as is.
func BaseURL(conn *secrets.Connection) string {
	if strings.Contains(conn.Host, "://") {
		return strings.TrimRight(conn.Host, "/")
	}
	scheme := conn.Schema
	if scheme == "" {
		scheme = "http"
	}
	base := scheme + "://" + conn.Host
	if conn.Port != 0 {
		base += ":" + strconv.Itoa(conn.Port)
	}
	return base
}

// JoinURL appends endpoint to base with exactly one separating slash.
func JoinURL(base, endpoint string) string {
	if endpoint == "" {
		return base
	}
	if strings.HasSuffix(base, "/") || strings.HasPrefix(endpoint, "/") {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}
	return base + "/" + endpoint
}

// NewRequest builds the request for conn. Data becomes the query string for
// GET and HEAD, and the body otherwise; maps are form encoded.
func (o *Operator) NewRequest(ctx context.Context, conn *secrets.Connection) (*http.Request, error) {
	target := JoinURL(BaseURL(conn), o.Params.Endpoint)
	method := o.Params.Method

	var body io.Reader
	form := formValues(o.Params.Data)
	if method == http.MethodGet || method == http.MethodHead {
		if form != nil {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + form.Encode()
		}
	} else if s, ok := o.Params.Data.(string); ok {
		body = strings.NewReader(s)
	} else if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil && body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, value := range conn.Extra {
		req.Header.Set(key, fmt.Sprint(value))
	}
	for key, value := range o.Params.Headers {
		req.Header.Set(key, value)
	}
	if conn.Login != "" {
		req.SetBasicAuth(conn.Login, conn.Password)
	}
	return req, nil
}

func formValues(data any) url.Values {
	m, ok := data.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	values := url.Values{}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			for _, item := range v {
				values.Add(k, fmt.Sprint(item))
			}
		default:
			values.Set(k, fmt.Sprint(v))
		}
	}
	return values
}

// Execute sends the request and returns the response text, or the value
// selected by response_filter.
func (o *Operator) Execute(ctx context.Context, _ taskcontext.Context) (any, error) {
	conn, err := o.Connection(o.Params.HTTPConnID)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}
	req, err := o.NewRequest(ctx, conn)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}

	client := o.Client
	if client == nil {
		timeout := defaultTimeout
		if o.Params.ExtraOptions.Timeout > 0 {
			timeout = time.Duration(o.Params.ExtraOptions.Timeout * float64(time.Second))
		}
		client = &http.Client{Timeout: timeout}
	}

	o.Log.WithFields(map[string]any{"method": req.Method, "url": req.URL.Redacted()}).Info("calling HTTP method")
	resp, err := client.Do(req)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("failed to read response body: %w", err))
	}
	text := string(raw)
	if o.Params.LogResponse {
		o.Log.Info(text)
	}

	checkStatus := o.Params.ExtraOptions.CheckResponse == nil || *o.Params.ExtraOptions.CheckResponse
	if checkStatus && resp.StatusCode >= http.StatusBadRequest {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("%d:%s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	if o.check != nil && !o.check.MatchString(text) {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("response check returned false"))
	}
	if o.Params.ResponseFilter != "" {
		filtered, err := Filter(raw, o.Params.ResponseFilter)
		if err != nil {
			return nil, execerrors.NewExecutionError(o.ID, err)
		}
		return filtered, nil
	}
	return text, nil
}

// Filter decodes body as JSON and walks the dot separated path into it.
// Numeric segments index into arrays.
func Filter(body []byte, path string) (any, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, fmt.Errorf("response_filter needs a JSON response: %w", err)
	}
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		switch node := value.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("response_filter: key %q not found", segment)
			}
			value = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("response_filter: invalid index %q", segment)
			}
			value = node[i]
		default:
			return nil, fmt.Errorf("response_filter: cannot descend into %q", segment)
		}
	}
	return value, nil
}
