// Command license-gen is the admin tool for the license gate. It
// registers the admin machine, issues hardware-bound licenses and
// checks the license installed on the current machine.
//
// Usage:
//
//	license-gen register
//	license-gen generate -employee E123 -name "Jane Doe" -email jane@example.com -department Engineering [-install]
//	license-gen validate
//	license-gen fingerprint
//
// The company secret is read from the COMPANY_SECRET environment
// variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"

	"profileapi/internal/license"
	"profileapi/internal/security"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	var err error
	switch os.Args[1] {
	case "register":
		err = runRegister(logger, os.Args[2:])
	case "generate":
		err = runGenerate(logger, os.Args[2:])
	case "validate":
		err = runValidate(logger, os.Args[2:])
	case "fingerprint":
		err = runFingerprint(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: license-gen <register|generate|validate|fingerprint> [flags]")
}

// commonFlags registers the flags shared by every subcommand
func commonFlags(fs *flag.FlagSet) (licenseFile, bindingFile *string) {
	licenseFile = fs.String("license-file", ".license", "path of the installed license")
	bindingFile = fs.String("binding-file", ".admin-fingerprint", "path of the admin machine binding")
	return
}

func newManager(logger *slog.Logger, licenseFile, bindingFile string) *license.Manager {
	fingerprints := security.NewFingerprinter()
	return license.NewManager(license.ManagerConfig{
		Repository:   license.NewFileRepository(licenseFile),
		Binding:      security.NewBindingStore(bindingFile, fingerprints, logger),
		Fingerprints: fingerprints,
		Logger:       logger,
	})
}

func runRegister(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	licenseFile, bindingFile := commonFlags(fs)
	fs.Parse(args)

	manager := newManager(logger, *licenseFile, *bindingFile)
	if err := manager.RegisterAdminMachine(context.Background(), os.Getenv("COMPANY_SECRET")); err != nil {
		return err
	}
	fmt.Println("admin machine registered")
	return nil
}

func runGenerate(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	licenseFile, bindingFile := commonFlags(fs)
	employee := fs.String("employee", "", "employee ID")
	name := fs.String("name", "", "employee name")
	email := fs.String("email", "", "employee email")
	department := fs.String("department", "", "employee department")
	install := fs.Bool("install", false, "install the issued license on this machine")
	fs.Parse(args)

	req := license.GenerateRequest{
		EmployeeID: *employee,
		Name:       *name,
		Email:      *email,
		Department: *department,
	}
	if err := validator.New().Struct(req); err != nil {
		return fmt.Errorf("employee, name, email and department are required: %w", err)
	}

	manager := newManager(logger, *licenseFile, *bindingFile)
	ctx := context.Background()

	blob, err := manager.Generate(ctx, req, os.Getenv("COMPANY_SECRET"))
	if err != nil {
		return err
	}

	if *install {
		if err := manager.Install(ctx, blob); err != nil {
			return err
		}
		fmt.Printf("license for %s installed to %s\n", req.EmployeeID, *licenseFile)
		return nil
	}

	fmt.Println(blob)
	return nil
}

func runValidate(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	licenseFile, bindingFile := commonFlags(fs)
	fs.Parse(args)

	manager := newManager(logger, *licenseFile, *bindingFile)
	result, err := manager.Validate(context.Background(), os.Getenv("COMPANY_SECRET"))
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}
	fmt.Printf("license valid for %s (%s), expires %s\n",
		result.Employee.Name,
		result.Employee.EmployeeID,
		result.Employee.ExpiresAt.Format("2006-01-02"))
	return nil
}

func runFingerprint(args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	fs.Parse(args)

	fp, err := security.NewFingerprinter().Fingerprint()
	if err != nil {
		return err
	}
	fmt.Println(fp.Hash)
	return nil
}
