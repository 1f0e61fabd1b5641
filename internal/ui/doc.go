// Package ui provides terminal UI components for the printgate-client CLI.
//
// Most components follow a "render once and exit" pattern: they turn
// gateway responses into styled text without asking for input.
//
//   - Header: command banner showing the operation and its parameters
//   - Progress: bar and step list that follows a print job through CUPS
//   - Result: success, warning and failure boxes, with troubleshooting tips
//     taken from client.GetTroubleshootingHint
//   - RenderPrinterTable: local queues first, then discovered printers
//
// Output ties these together for a single writer.
//
// The one interactive component is the printer picker (RunPicker), a
// Bubble Tea list that reloads whenever the gateway's event stream reports
// a change.
//
// # Logging Integration
//
// Logging is controlled via PRINTGATE_LOG_LEVEL. When it is unset, zap is
// silent and only the styled output is shown.
package ui
