package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/adapter/mcpserver"
	"piifinder/internal/adapter/store"
	"piifinder/internal/domain"
	"piifinder/internal/usecase/pagecontext"
	"piifinder/internal/usecase/selector"
	"piifinder/internal/usecase/session"
)

// readDocument parses --html (a file, or stdin for "-") or captures --url.
func readDocument(ctx context.Context, a *app, flags cliFlags, stdin io.Reader) (*dom.Document, error) {
	switch {
	case flags.HTML == "-":
		return dom.Parse(stdin)
	case flags.HTML != "":
		f, err := os.Open(flags.HTML)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return dom.Parse(f)
	case flags.URL != "":
		src, err := a.loader.LoadHTML(ctx, flags.URL)
		if err != nil {
			return nil, err
		}
		return dom.ParseString(src)
	default:
		return nil, fmt.Errorf("one of --html or --url is required")
	}
}

// hostname returns --host, or the host of --url.
func hostname(flags cliFlags) (string, error) {
	if flags.Host != "" {
		return strings.ToLower(flags.Host), nil
	}
	if flags.URL != "" {
		return store.HostnameFromURL(flags.URL)
	}
	return "", fmt.Errorf("--host or --url is required")
}

func openStore(a *app) (*store.SQLiteSelectorStore, error) {
	s, err := store.NewSQLiteSelectorStore(a.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSelect(ctx context.Context, a *app, flags cliFlags, stdin io.Reader, stdout io.Writer) error {
	doc, err := readDocument(ctx, a, flags, stdin)
	if err != nil {
		return err
	}
	el, err := session.Locate(doc, flags.Target, flags.Text)
	if err != nil {
		return err
	}

	ctrl := session.New(doc, a.orch, session.Options{
		Strategy: a.strategy,
		Selector: a.selector,
		UseAI:    flags.AI,
	}, a.log)
	if _, err := ctrl.Start(); err != nil {
		return err
	}
	sel, err := ctrl.Select(ctx, el)
	if err != nil {
		return err
	}

	if flags.Save {
		host, err := hostname(flags)
		if err != nil {
			return err
		}
		st, err := openStore(a)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Add(ctx, host, domain.StoredSelector{Selector: sel.Selector, Type: sel.Type}); err != nil {
			return err
		}
		a.log.Info("selector saved", "host", host, "selector", sel.Selector)
	}

	if flags.Export {
		sel.Selector = selector.Export(sel.Selector)
		for i, alt := range sel.Alternatives {
			sel.Alternatives[i] = selector.Export(alt)
		}
	}
	if flags.JSON {
		return writeJSON(stdout, sel)
	}
	fmt.Fprintln(stdout, sel.Selector)
	for _, alt := range sel.Alternatives {
		fmt.Fprintf(stdout, "  alt: %s\n", alt)
	}
	return nil
}

func runContext(ctx context.Context, a *app, flags cliFlags, stdin io.Reader, stdout io.Writer) error {
	doc, err := readDocument(ctx, a, flags, stdin)
	if err != nil {
		return err
	}
	el, err := session.Locate(doc, flags.Target, flags.Text)
	if err != nil {
		return err
	}

	cdoc, err := pagecontext.NewExtractor(pagecontext.ExtractorConfig{MaxDepth: a.cfg.Context.MaxDepth}, a.log).Extract(el)
	if err != nil {
		return err
	}
	mc, _ := domain.LookupModel(a.cfg.AI.Model)
	report := pagecontext.NewTrimmer(a.counter, a.log).Trim(cdoc, mc.ContextLimit)

	return writeJSON(stdout, struct {
		Context *domain.PageContextDocument `json:"context"`
		Trim    pagecontext.TrimReport      `json:"trim"`
	}{cdoc, report})
}

func runTest(ctx context.Context, a *app, flags cliFlags, rest []string, stdin io.Reader, stdout io.Writer) error {
	sel := flags.Selector
	if sel == "" && len(rest) > 0 {
		sel = rest[0]
	}
	if sel == "" {
		return fmt.Errorf("a selector is required (--selector CSS)")
	}
	doc, err := readDocument(ctx, a, flags, stdin)
	if err != nil {
		return err
	}

	n, err := session.New(doc, nil, session.Options{}, a.log).Preview(sel)
	if flags.JSON {
		res := map[string]any{"selector": sel, "count": n, "valid": err == nil}
		if err != nil {
			res["error"] = err.Error()
		}
		if werr := writeJSON(stdout, res); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		fmt.Fprintln(stdout, -1)
		return err
	}
	fmt.Fprintln(stdout, n)
	return nil
}

func runApply(ctx context.Context, a *app, flags cliFlags, stdin io.Reader, stdout io.Writer) error {
	host, err := hostname(flags)
	if err != nil {
		return err
	}
	st, err := openStore(a)
	if err != nil {
		return err
	}
	defer st.Close()
	saved, err := st.List(ctx, host)
	if err != nil {
		return err
	}

	doc, err := readDocument(ctx, a, flags, stdin)
	if err != nil {
		return err
	}
	report, err := session.New(doc, nil, session.Options{}, a.log).Apply(saved)
	if err != nil {
		return err
	}
	a.log.Info("saved selectors applied",
		"host", host, "applied", len(report.Applied), "matched", report.Matched, "skipped", len(report.Skipped))

	if flags.JSON {
		return writeJSON(stdout, report)
	}
	out, err := doc.HTML()
	if err != nil {
		return err
	}
	if flags.Output != "" {
		return os.WriteFile(flags.Output, []byte(out), 0o644)
	}
	_, err = io.WriteString(stdout, out)
	return err
}

func runSaved(ctx context.Context, a *app, flags cliFlags, rest []string, stdout io.Writer) error {
	if len(rest) == 0 {
		return fmt.Errorf("saved needs a subcommand: add, list, remove, clear")
	}
	st, err := openStore(a)
	if err != nil {
		return err
	}
	defer st.Close()

	sub := rest[0]
	if sub == "list" && flags.Host == "" && flags.URL == "" {
		hosts, err := st.Hostnames(ctx)
		if err != nil {
			return err
		}
		for _, h := range hosts {
			fmt.Fprintln(stdout, h)
		}
		return nil
	}

	host, err := hostname(flags)
	if err != nil {
		return err
	}
	sel := flags.Selector
	if sel == "" && len(rest) > 1 {
		sel = rest[1]
	}

	switch sub {
	case "add":
		if sel == "" {
			return fmt.Errorf("saved add needs a selector")
		}
		if _, err := dom.Compile(sel); err != nil {
			return domain.NewDomainError("saved add", domain.ErrInvalidSelector, err.Error())
		}
		return st.Add(ctx, host, domain.StoredSelector{Selector: sel, Type: domain.SelectorTypeBlock})
	case "list":
		list, err := st.List(ctx, host)
		if err != nil {
			return err
		}
		if flags.JSON {
			if list == nil {
				list = []domain.StoredSelector{}
			}
			return writeJSON(stdout, list)
		}
		for _, s := range list {
			v := s.Selector
			if flags.Export {
				v = selector.Export(v)
			}
			fmt.Fprintln(stdout, v)
		}
		return nil
	case "remove":
		if sel == "" {
			return fmt.Errorf("saved remove needs a selector")
		}
		return st.Remove(ctx, host, sel)
	case "clear":
		return st.Clear(ctx, host)
	default:
		return fmt.Errorf("unknown saved subcommand %q (want: add, list, remove, clear)", sub)
	}
}

func runExport(flags cliFlags, rest []string, stdout io.Writer) error {
	sel := flags.Selector
	if sel == "" && len(rest) > 0 {
		sel = strings.Join(rest, " ")
	}
	if sel == "" {
		return fmt.Errorf("a selector is required")
	}
	fmt.Fprintln(stdout, selector.Export(sel))
	return nil
}

func runModels(stdout io.Writer) error {
	names := domain.ModelNames()
	slices.Sort(names)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCONTEXT LIMIT\tRECOMMENDED\t")
	for _, name := range names {
		mc, _ := domain.LookupModel(name)
		marker := ""
		if name == domain.DefaultModel {
			marker = " (default)"
		}
		fmt.Fprintf(tw, "%s%s\t%d\t%d\t\n", name, marker, mc.ContextLimit, mc.RecommendedMax)
	}
	return tw.Flush()
}

func runMCP(ctx context.Context, a *app, stdin io.Reader, stdout io.Writer) error {
	if a.cfg.Logger.Output == "stdout" {
		return fmt.Errorf("logger.output stdout would corrupt the MCP stream; use stderr or a file")
	}
	srv, err := mcpserver.New(mcpserver.Deps{
		Resolver: a.orch,
		Loader:   a.loader,
		Selector: a.selector,
		Version:  version,
	}, a.log)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, stdin, stdout)
}
