// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/abie0416/BiegeAI/services/orchestrator/retrieval"
)

// SuiteConfig carries the external dependencies the built-in tools need.
// Zero-value fields degrade the matching tool to a readable "not
// configured" answer instead of failing registration.
type SuiteConfig struct {
	// Retriever backs the personal_knowledge tool.
	Retriever retrieval.Retriever

	// Completer backs the general_knowledge tool.
	Completer Completer

	// WeatherAPIKey is the OpenWeatherMap API key for get_weather.
	WeatherAPIKey string

	// WorkDir confines file_operations. Defaults to the process working
	// directory.
	WorkDir string

	// HTTPClient is used by the network tools. Defaults to a client with
	// a 10 second timeout.
	HTTPClient *http.Client

	// Now is the clock for get_time. Defaults to time.Now.
	Now func() time.Time
}

func (c *SuiteConfig) applyDefaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// BuiltinTools returns the descriptor set for the standard tool suite.
func BuiltinTools(cfg SuiteConfig) []Descriptor {
	cfg.applyDefaults()
	suite := &toolSuite{cfg: cfg}

	return []Descriptor{
		{
			Name: "personal_knowledge",
			Description: "Access the personal knowledge base for information about " +
				"personal acquaintances, friends, family members, or private events " +
				"that aren't widely known. Use this when asked about specific names " +
				"or events that aren't public figures or major historical events.",
			Parameters: map[string]string{
				"query": "Question about a specific person or private event",
			},
			Invoke: suite.personalKnowledge,
		},
		{
			Name:        "general_knowledge",
			Description: "Answer general questions using AI knowledge",
			Parameters: map[string]string{
				"question": "The question to answer",
			},
			Invoke: suite.generalKnowledge,
		},
		{
			Name:        "web_search",
			Description: "Search the web for current information and news",
			Parameters: map[string]string{
				"query": "The search query",
			},
			Invoke: suite.webSearch,
		},
		{
			Name:        "get_weather",
			Description: "Get current weather information for a location",
			Parameters: map[string]string{
				"location": "City name or location",
			},
			Invoke: suite.getWeather,
		},
		{
			Name:        "calculator",
			Description: "Perform mathematical calculations",
			Parameters: map[string]string{
				"expression": "Mathematical expression to evaluate",
			},
			Invoke: suite.calculate,
		},
		{
			Name:        "get_time",
			Description: "Get current time and date information",
			Parameters: map[string]string{
				"timezone": "Timezone (optional, defaults to UTC)",
			},
			Invoke: suite.getTime,
		},
		{
			Name:        "fetch_url_content",
			Description: "Fetch and summarize content from a URL",
			Parameters: map[string]string{
				"url": "The URL to fetch content from",
			},
			Invoke: suite.fetchURL,
		},
		{
			Name:        "file_operations",
			Description: "Read, write, or list files in the agent working directory",
			Parameters: map[string]string{
				"operation": "One of 'read', 'write', 'list'",
				"filename":  "Name of the file",
				"content":   "Content to write (write operation only)",
			},
			Invoke: suite.fileOperations,
		},
	}
}

type toolSuite struct {
	cfg SuiteConfig
}

// =============================================================================
// Knowledge Tools
// =============================================================================

func (s *toolSuite) personalKnowledge(ctx context.Context, args map[string]any) string {
	query := StringArg(args, "query")
	if query == "" {
		return "[Tool Error] personal_knowledge requires a query"
	}
	if s.cfg.Retriever == nil {
		return "[Tool Error] personal knowledge base is not configured"
	}

	docs, err := s.cfg.Retriever.Search(ctx, query, 3)
	if err != nil {
		return fmt.Sprintf("[Tool Error] personal knowledge search failed: %v", err)
	}
	relevant := retrieval.FilterRelevant(docs, retrieval.DefaultThreshold, retrieval.DefaultMinDocs)
	if len(relevant) == 0 {
		return retrieval.NoKnowledgeMarker
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Personal knowledge for %q:\n", query)
	for i, doc := range relevant {
		fmt.Fprintf(&b, "%d. %s\n", i+1, doc.Content)
	}
	return b.String()
}

func (s *toolSuite) generalKnowledge(ctx context.Context, args map[string]any) string {
	question := StringArg(args, "question")
	if question == "" {
		return "[Tool Error] general_knowledge requires a question"
	}
	if s.cfg.Completer == nil {
		return "[Tool Error] general knowledge model is not configured"
	}
	return s.cfg.Completer.Complete(ctx, question)
}

// =============================================================================
// Network Tools
// =============================================================================

// webSearch queries the DuckDuckGo Instant Answer API, which needs no key.
func (s *toolSuite) webSearch(ctx context.Context, args map[string]any) string {
	query := StringArg(args, "query")
	if query == "" {
		return "[Tool Error] web_search requires a query"
	}

	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}
	body, err := s.getJSON(ctx, "https://api.duckduckgo.com/?"+params.Encode())
	if err != nil {
		return fmt.Sprintf("[Tool Error] web search failed: %v", err)
	}

	if abstract := jsonString(body, "Abstract"); abstract != "" {
		return fmt.Sprintf("Web search result for '%s': %s", query, abstract)
	}
	if answer := jsonString(body, "Answer"); answer != "" {
		return fmt.Sprintf("Web search result for '%s': %s", query, answer)
	}
	return fmt.Sprintf("No direct answer found for '%s'. Try rephrasing your search.", query)
}

func (s *toolSuite) getWeather(ctx context.Context, args map[string]any) string {
	location := StringArg(args, "location")
	if location == "" {
		return "[Tool Error] get_weather requires a location"
	}
	if s.cfg.WeatherAPIKey == "" {
		return fmt.Sprintf("Weather information for %s: API key not configured. "+
			"Please set OPENWEATHER_API_KEY.", location)
	}

	params := url.Values{
		"q":     {location},
		"appid": {s.cfg.WeatherAPIKey},
		"units": {"metric"},
	}
	body, err := s.getJSON(ctx, "https://api.openweathermap.org/data/2.5/weather?"+params.Encode())
	if err != nil {
		return fmt.Sprintf("Weather data not available for %s", location)
	}

	main, _ := body["main"].(map[string]any)
	weatherList, _ := body["weather"].([]any)
	if main == nil || len(weatherList) == 0 {
		return fmt.Sprintf("Weather data not available for %s", location)
	}
	first, _ := weatherList[0].(map[string]any)
	temp, _ := main["temp"].(float64)
	humidity, _ := main["humidity"].(float64)
	description, _ := first["description"].(string)

	return fmt.Sprintf("Weather in %s: %.1f°C, %s, Humidity: %.0f%%",
		location, temp, description, humidity)
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func (s *toolSuite) fetchURL(ctx context.Context, args map[string]any) string {
	target := StringArg(args, "url")
	if target == "" {
		return "[Tool Error] fetch_url_content requires a url"
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Sprintf("[Tool Error] invalid URL %s: %v", target, err)
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Sprintf("[Tool Error] failed to fetch %s: %v", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Sprintf("[Tool Error] %s returned status %d", target, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Sprintf("[Tool Error] failed to read %s: %v", target, err)
	}

	clean := htmlTagPattern.ReplaceAllString(string(raw), " ")
	clean = strings.Join(strings.Fields(clean), " ")
	clean = truncateRunes(clean, 500)
	return fmt.Sprintf("Content from %s: %s...", target, clean)
}

func (s *toolSuite) getJSON(ctx context.Context, endpoint string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return decodeJSONObject(resp.Body)
}

// =============================================================================
// Local Tools
// =============================================================================

// calculatorCharset is the only input the calculator accepts. Everything
// else is rejected before parsing.
const calculatorCharset = "0123456789+-*/()., "

func (s *toolSuite) calculate(_ context.Context, args map[string]any) string {
	expression := StringArg(args, "expression")
	if expression == "" {
		return "[Tool Error] calculator requires an expression"
	}

	for _, c := range expression {
		if !strings.ContainsRune(calculatorCharset, c) {
			return "Error: Invalid characters in expression. Only numbers, " +
				"operators (+, -, *, /), parentheses, and decimal points are allowed."
		}
	}

	result, err := evalExpression(expression)
	if err != nil {
		return fmt.Sprintf("Calculation error: %v", err)
	}
	return fmt.Sprintf("Calculation: %s = %s", expression, formatNumber(result))
}

func (s *toolSuite) getTime(_ context.Context, args map[string]any) string {
	timezone := StringArg(args, "timezone")
	if timezone == "" || strings.EqualFold(timezone, "UTC") {
		return fmt.Sprintf("Current time (UTC): %s",
			s.cfg.Now().UTC().Format("2006-01-02 15:04:05"))
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Sprintf("Current time (local): %s (unknown timezone %q)",
			s.cfg.Now().Format("2006-01-02 15:04:05"), timezone)
	}
	return fmt.Sprintf("Current time (%s): %s",
		timezone, s.cfg.Now().In(loc).Format("2006-01-02 15:04:05"))
}

func (s *toolSuite) fileOperations(_ context.Context, args map[string]any) string {
	operation := StringArg(args, "operation")

	switch operation {
	case "list":
		entries, err := os.ReadDir(s.cfg.WorkDir)
		if err != nil {
			return fmt.Sprintf("[Tool Error] failed to list files: %v", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
			if len(names) == 10 {
				break
			}
		}
		return fmt.Sprintf("Files in working directory: %s", strings.Join(names, ", "))

	case "read":
		path, errMsg := s.resolvePath(args)
		if errMsg != "" {
			return errMsg
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Sprintf("[Tool Error] failed to read file: %v", err)
		}
		content := string(data)
		if utf8.RuneCountInString(content) > 500 {
			content = truncateRunes(content, 500) + "..."
		}
		return fmt.Sprintf("File content of %s: %s", filepath.Base(path), content)

	case "write":
		path, errMsg := s.resolvePath(args)
		if errMsg != "" {
			return errMsg
		}
		content, _ := args["content"].(string)
		if content == "" {
			return "[Tool Error] filename and content required for write operation"
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Sprintf("[Tool Error] failed to write file: %v", err)
		}
		return fmt.Sprintf("Successfully wrote content to %s", filepath.Base(path))

	default:
		return fmt.Sprintf("[Tool Error] unknown operation %q; expected read, write, or list", operation)
	}
}

// resolvePath confines file access to the configured working directory.
func (s *toolSuite) resolvePath(args map[string]any) (string, string) {
	filename, _ := args["filename"].(string)
	if filename == "" {
		return "", "[Tool Error] filename required for this operation"
	}
	if filepath.IsAbs(filename) || strings.Contains(filename, "..") {
		return "", "[Tool Error] filename must be a plain name inside the working directory"
	}
	return filepath.Join(s.cfg.WorkDir, filename), ""
}

// =============================================================================
// Expression Evaluation
// =============================================================================

// evalExpression evaluates an arithmetic expression with the usual
// precedence: unary minus, then * and /, then + and -. Commas are treated
// as digit group separators and stripped.
func evalExpression(expr string) (float64, error) {
	p := &exprParser{input: strings.ReplaceAll(expr, ",", "")}
	result, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return result, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	if p.peek() == '+' {
		p.pos++
		return p.parseUnary()
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpaces()
	if p.peek() == '(' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number at position %d", start)
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return v, nil
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func jsonString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// truncateRunes shortens s to at most n runes so multi-byte sequences are
// never cut mid-rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func decodeJSONObject(r io.Reader) (map[string]any, error) {
	var m map[string]any
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return m, nil
}
