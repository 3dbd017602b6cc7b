package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stockflow/internal/core/id"
)

type menuField struct {
	label    string
	flag     string // empty for positional arguments
	fallback string
}

type menuItem struct {
	key    string
	title  string
	verb   string
	fields []menuField
}

var menu = []menuItem{
	{key: "1", title: "Receive a batch", verb: "add", fields: []menuField{
		{label: "product"},
		{label: "quantity"},
		{label: "price"},
		{label: "purchased", flag: "--purchased", fallback: "today"},
		{label: "expiry (blank for none)", flag: "--expiry"},
		{label: "supplier", flag: "--supplier"},
	}},
	{key: "2", title: "Issue stock", verb: "issue", fields: []menuField{
		{label: "product"},
		{label: "quantity"},
		{label: "channel", fallback: "physical"},
	}},
	{key: "3", title: "Analyze a request", verb: "analyze", fields: []menuField{
		{label: "product"},
		{label: "quantity"},
	}},
	{key: "4", title: "Remove a batch", verb: "remove", fields: []menuField{
		{label: "batch id"},
	}},
	{key: "5", title: "Undo last command", verb: "undo"},
	{key: "6", title: "List batches", verb: "list", fields: []menuField{
		{label: "product (blank for all)"},
	}},
	{key: "7", title: "Show a batch", verb: "show", fields: []menuField{
		{label: "batch id"},
	}},
	{key: "8", title: "Low-stock report", verb: "low-stock", fields: []menuField{
		{label: "threshold", flag: "--threshold", fallback: "10"},
	}},
	{key: "9", title: "Expiring report", verb: "expiring", fields: []menuField{
		{label: "days", flag: "--days", fallback: "30"},
	}},
	{key: "s", title: "Show or switch strategy", verb: "strategy", fields: []menuField{
		{label: "strategy (blank to show)"},
	}},
}

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive session with undo across entries",
		Long:  "Start an interactive session. Pick a numbered entry to be prompted for its fields, or type any stockctl command line such as \"issue MILK-1L 5 online\".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.inConsole {
				return errors.New("already in the console")
			}
			c := &console{app: a, in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.OutOrStdout()}
			return c.run(cmd)
		},
	}
}

type console struct {
	app *app
	in  *bufio.Scanner
	out io.Writer
}

func (c *console) run(cmd *cobra.Command) error {
	c.printMenu()
	for {
		c.status()
		line, ok := c.prompt("stockctl> ")
		if !ok {
			fmt.Fprintln(c.out)
			return nil
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit", "exit", "0":
			return nil
		case "?", "h", "help", "menu":
			c.printMenu()
			continue
		}

		args, err := c.argsFor(line)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintf(c.out, "%s %v\n", failStyle.Render("✘"), err)
			continue
		}
		c.dispatch(cmd, args)
	}
}

// argsFor turns a menu key into prompted arguments, or splits a typed command line.
func (c *console) argsFor(line string) ([]string, error) {
	for _, item := range menu {
		if line == item.key {
			return c.fill(item)
		}
	}
	return splitArgs(line)
}

func (c *console) fill(item menuItem) ([]string, error) {
	fmt.Fprintln(c.out, titleStyle.Render(item.title))
	args := []string{item.verb}
	for _, f := range item.fields {
		label := "  " + f.label
		if f.fallback != "" {
			label += " [" + f.fallback + "]"
		}
		v, ok := c.prompt(label + ": ")
		if !ok {
			return nil, io.EOF
		}
		if v == "" {
			v = f.fallback
		}
		if v == "" {
			continue
		}
		if f.flag != "" {
			args = append(args, f.flag+"="+v)
		} else {
			args = append(args, v)
		}
	}
	return args, nil
}

// dispatch runs one entry through a fresh command tree bound to the same session.
func (c *console) dispatch(parent *cobra.Command, args []string) {
	sub := *c.app
	sub.inConsole = true
	root := newRootCmd(&sub)
	// Flag registration resets the bound fields to their defaults.
	sub.jsonOut = c.app.jsonOut
	sub.verbose = c.app.verbose
	sub.operator = c.app.operator
	root.SetArgs(args)
	root.SetIn(parent.InOrStdin())
	root.SetOut(c.out)
	root.SetErr(c.out)

	err := root.ExecuteContext(parent.Context())
	if err != nil && !errors.Is(err, ErrReported) {
		fmt.Fprintf(c.out, "%s %v\n", failStyle.Render("✘"), err)
	}
}

func (c *console) prompt(label string) (string, bool) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *console) status() {
	svc := c.app.session.Allocation
	line := "strategy " + svc.Selector().Strategy().Name()
	if h := svc.LastHandle(); h != nil {
		line += fmt.Sprintf(" · undo: %s [%s]", h.Describe(), id.Short(h.ID))
	}
	fmt.Fprintln(c.out, dimStyle.Render(line))
}

func (c *console) printMenu() {
	fmt.Fprintln(c.out, titleStyle.Render("stockctl console"))
	for _, item := range menu {
		fmt.Fprintf(c.out, "  %s  %s\n", titleStyle.Render(item.key), item.title)
	}
	fmt.Fprintf(c.out, "  %s  %s\n", titleStyle.Render("q"), "Quit")
	fmt.Fprintln(c.out, dimStyle.Render("or type a command, e.g. issue MILK-1L 5 online"))
}

// splitArgs splits on whitespace, keeping single- or double-quoted runs together.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		pending bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			pending = true
		case r == ' ' || r == '\t':
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if pending {
		args = append(args, cur.String())
	}
	return args, nil
}
