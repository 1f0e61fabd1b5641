package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/printgate/internal/client"
	"github.com/muurk/printgate/internal/config"
	"github.com/muurk/printgate/internal/logging"
	"github.com/muurk/printgate/internal/ui"
)

// Global flags
var (
	configPath   string
	gatewayURL   string
	apiKey       string
	timeout      time.Duration
	outputFormat string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config file (default: OS config dir)")
	pf.StringVar(&gatewayURL, "gateway", "", "Gateway URL (default: client.gateway_url)")
	pf.StringVar(&apiKey, "api-key", "", "API key sent as X-API-Key")
	pf.DurationVar(&timeout, "timeout", 0, "HTTP request timeout")
	pf.StringVar(&outputFormat, "format", "table", "Output format (table, json)")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(printersCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

// clientConfig resolves the client settings: config file, then
// PRINTGATE_* variables, then flags.
func clientConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return config.ClientConfig{}, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.ClientConfig{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.ClientConfig{}, fmt.Errorf("invalid environment: %w", err)
	}

	cc := cfg.Client
	flags := cmd.Flags()
	if flags.Changed("gateway") {
		cc.GatewayURL = gatewayURL
	}
	if flags.Changed("api-key") {
		cc.APIKey = apiKey
	}
	if flags.Changed("timeout") {
		cc.Timeout = timeout
	}
	return cc, nil
}

func newClient(cmd *cobra.Command) (*client.Client, config.ClientConfig, error) {
	// Silent unless PRINTGATE_LOG_LEVEL is set, so only styled output shows.
	if err := logging.Initialize(""); err != nil {
		return nil, config.ClientConfig{}, fmt.Errorf("failed to initialize logging: %w", err)
	}

	cc, err := clientConfig(cmd)
	if err != nil {
		return nil, cc, err
	}

	c := client.NewClient(cc.GatewayURL)
	c.SetAPIKey(cc.APIKey)
	if cc.Timeout > 0 {
		c.SetTimeout(cc.Timeout)
	}
	return c, cc, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// fail shows err in a failure box and marks it reported.
func fail(out *ui.Output, title string, err error) error {
	if outputFormat == "json" {
		return err
	}
	out.PrintError(title, err)
	return fmt.Errorf("%w: %v", errReported, err)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the gateway is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		out := ui.NewOutput(os.Stdout)
		h, err := c.Health(ctx)
		if err != nil {
			return fail(out, "Gateway unreachable", err)
		}
		if outputFormat == "json" {
			return printJSON(h)
		}
		out.PrintSuccess("Gateway is "+h.Status,
			ui.Field{Key: "Gateway", Value: c.BaseURL},
			ui.Field{Key: "Version", Value: h.Version},
			ui.Field{Key: "Commit", Value: h.Commit},
			ui.Field{Key: "Network printers", Value: strconv.Itoa(h.NetworkPrinters)},
		)
		return nil
	},
}

var printersCmd = &cobra.Command{
	Use:     "printers",
	Aliases: []string{"ls"},
	Short:   "List local queues and discovered printers",
	Example: `  printgate-client printers
  printgate-client printers --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		out := ui.NewOutput(os.Stdout)
		printers, err := c.Printers(ctx)
		if err != nil {
			return fail(out, "Could not list printers", err)
		}
		if outputFormat == "json" {
			return printJSON(printers)
		}
		out.PrintPrinters(printers)
		return nil
	},
}

// Add command flags
var (
	addManufacturer string
	addLocation     string
	addInfo         string
)

var addCmd = &cobra.Command{
	Use:   "add <name> <address>",
	Short: "Add a network printer to the print server",
	Long: `Create a print queue on the gateway's print server for a network printer.

When the address belongs to a discovered printer, the gateway fills in the
model and location from the mDNS record unless they are given here.`,
	Example: `  printgate-client add lab 10.0.0.7
  printgate-client add lab 10.0.0.7 --location "Room 4" --manufacturer HP`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		out := ui.NewOutput(os.Stdout)
		req := client.AddPrinterRequest{
			Name:         args[0],
			Address:      args[1],
			Manufacturer: addManufacturer,
			Location:     addLocation,
			Info:         addInfo,
		}
		if outputFormat != "json" {
			out.PrintHeader("Add printer", "printgate-client add",
				ui.Field{Key: "Name", Value: req.Name},
				ui.Field{Key: "Address", Value: req.Address},
			)
		}
		if err := c.AddPrinter(ctx, req); err != nil {
			return fail(out, "Could not add printer", err)
		}
		if outputFormat == "json" {
			return printJSON(map[string]string{"message": "Printer added successfully"})
		}
		out.PrintSuccess("Printer added", ui.Field{Key: "Queue", Value: req.Name})
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addManufacturer, "manufacturer", "", "Printer manufacturer or model")
	addCmd.Flags().StringVar(&addLocation, "location", "", "Printer location")
	addCmd.Flags().StringVar(&addInfo, "info", "", "Queue description")
}

// Print command flags
var (
	printPrinter  string
	printTitle    string
	printOptions  map[string]string
	printWait     bool
	printInterval time.Duration
)

var printCmd = &cobra.Command{
	Use:   "print <file.pdf>",
	Short: "Upload a PDF and print it",
	Long: `Upload a PDF to the gateway and queue it on a printer.

The printer defaults to client.default_printer (or PRINTGATE_PRINTER). On a
terminal with neither set, a picker is shown. IPP job attributes can be
passed with --option.`,
	Example: `  printgate-client print report.pdf --printer office
  printgate-client print report.pdf --printer office --option copies=2 --option sides=two-sided-long-edge
  printgate-client print report.pdf --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runPrint,
}

func init() {
	f := printCmd.Flags()
	f.StringVarP(&printPrinter, "printer", "p", "", "Printer name")
	f.StringVar(&printTitle, "title", "", "Job title (default: file name)")
	f.StringToStringVar(&printOptions, "option", nil, "IPP job attribute as key=value (repeatable)")
	f.BoolVarP(&printWait, "wait", "w", false, "Wait until the job finishes")
	f.DurationVar(&printInterval, "interval", 2*time.Second, "Job status poll interval with --wait")
}

func runPrint(cmd *cobra.Command, args []string) error {
	c, cc, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out := ui.NewOutput(os.Stdout)

	printer := printPrinter
	if printer == "" {
		printer = cc.DefaultPrinter
	}
	if printer == "" && outputFormat != "json" && ui.IsTerminal(os.Stdout) {
		selected, err := ui.RunPicker(ctx, c)
		if err != nil {
			return fail(out, "Could not choose a printer", err)
		}
		if selected == nil {
			return nil
		}
		printer = selected.Name
	}

	req := client.PrintRequest{
		Printer: printer,
		Path:    args[0],
		Title:   printTitle,
		Options: printOptions,
	}

	if outputFormat != "json" {
		params := []ui.Field{
			{Key: "Printer", Value: printer},
			{Key: "File", Value: filepath.Base(args[0])},
		}
		for k, v := range printOptions {
			params = append(params, ui.Field{Key: k, Value: v})
		}
		out.PrintHeader("Print job", "printgate-client print", params...)
	}

	result, err := c.Print(ctx, req)
	if err != nil {
		return fail(out, "Print failed", err)
	}

	if !printWait {
		if outputFormat == "json" {
			return printJSON(result)
		}
		out.PrintSuccess("Print job submitted",
			ui.Field{Key: "Job", Value: strconv.Itoa(result.JobID)},
			ui.Field{Key: "Printer", Value: printer},
		)
		return nil
	}

	return waitForJob(ctx, c, out, result.JobID)
}

// waitForJob follows a job until it finishes, redrawing progress on every
// state change.
func waitForJob(ctx context.Context, c *client.Client, out *ui.Output, jobID int) error {
	progress := ui.NewJobProgress(fmt.Sprintf("Job %d", jobID))
	progress.CompleteStep(ui.JobStepUpload, "job "+strconv.Itoa(jobID))

	last := ""
	final, err := c.WaitForJob(ctx, jobID, printInterval, func(js *client.JobStatus) {
		if js.Status == last || outputFormat == "json" {
			return
		}
		last = js.Status
		progress.ApplyJobStatus(js.Status)
		out.PrintProgress(progress)
		out.Newline()
	})
	if err != nil {
		return fail(out, "Lost track of job", err)
	}

	if outputFormat == "json" {
		return printJSON(final)
	}

	details := []ui.Field{
		{Key: "Job", Value: strconv.Itoa(final.JobID)},
		{Key: "Printer", Value: final.Printer},
		{Key: "State", Value: final.Status},
	}
	if final.Status != "completed" {
		out.PrintWarning("Job "+final.Status, details...)
		return fmt.Errorf("%w: job %d %s", errReported, final.JobID, final.Status)
	}
	out.PrintSuccess("Job completed", details...)
	return nil
}

var statusWait bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a print job",
	Example: `  printgate-client status 42
  printgate-client status 42 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := strconv.Atoi(args[0])
		if err != nil || jobID < 1 {
			return fmt.Errorf("invalid job id %q", args[0])
		}

		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		out := ui.NewOutput(os.Stdout)
		if statusWait {
			return waitForJob(ctx, c, out, jobID)
		}

		js, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return fail(out, "Could not get job status", err)
		}
		if outputFormat == "json" {
			return printJSON(js)
		}
		out.Println(fmt.Sprintf("  Job %d on %s: %s", js.JobID, js.Printer, ui.StateStyle(js.Status).Render(js.Status)))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "Wait until the job finishes")
	statusCmd.Flags().DurationVar(&printInterval, "interval", 2*time.Second, "Poll interval with --wait")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the discovered printer list live",
	Long: `Open the gateway's event stream and print the network printer list
every time it changes. Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		out := ui.NewOutput(os.Stdout)
		err = c.WatchEvents(ctx, func(ev client.Event) error {
			if outputFormat == "json" {
				data, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			out.Println(ui.StepNoteStyle.Render(ev.Timestamp.Local().Format(time.TimeOnly)) +
				fmt.Sprintf("  %d network printer(s)", len(ev.Printers)))
			out.PrintPrinters(ev.Printers)
			out.Newline()
			return nil
		})
		if err != nil {
			return fail(out, "Event stream closed", err)
		}
		return nil
	},
}

// runPicker is the default action: choose a printer and show how to use it.
func runPicker(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal(os.Stdout) {
		return cmd.Help()
	}

	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out := ui.NewOutput(os.Stdout)
	selected, err := ui.RunPicker(ctx, c)
	if err != nil {
		return fail(out, "Could not list printers", err)
	}
	if selected == nil {
		return nil
	}

	details := []ui.Field{
		{Key: "Type", Value: selected.Type},
		{Key: "Address", Value: selected.Address},
	}
	if selected.Location != "" {
		details = append(details, ui.Field{Key: "Location", Value: selected.Location})
	}
	if selected.IsNetwork() {
		details = append(details, ui.Field{Key: "Add it", Value: fmt.Sprintf("printgate-client add %s %s", selected.Name, selected.Address)})
	} else {
		details = append(details, ui.Field{Key: "Print", Value: fmt.Sprintf("printgate-client print --printer %s <file.pdf>", selected.Name)})
	}
	out.PrintSuccess(selected.Name, details...)
	return nil
}
