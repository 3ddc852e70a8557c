// Command exampack drives the validation/transform/pack cycle locally,
// without the API server: useful for checking documents before an upload
// and for scripting.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahulmehra/exampack/internal/archive"
	"github.com/rahulmehra/exampack/internal/audit"
	"github.com/rahulmehra/exampack/internal/logging"
	"github.com/rahulmehra/exampack/internal/matcher"
	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/pipeline"
	"github.com/rahulmehra/exampack/internal/schema"
	"github.com/rahulmehra/exampack/internal/transform"
	"github.com/rahulmehra/exampack/internal/validate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "exampack: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exampack",
		Short: "Validate, fix and package exam documents",
		Long: `exampack checks document files against a competitive exam's requirements
(format, size, pixel dimensions), transforms non-conforming files into
compliance, and packs the results into a submission-ready zip.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newExamsCmd(),
		newValidateCmd(),
		newPackCmd(),
	)
	return cmd
}

func newExamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exams",
		Short: "List the built-in exam profiles and their requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range schema.List() {
				fmt.Printf("%s\t%s (schema %s)\n", s.ID, s.Name, s.Version)
				for _, req := range s.Requirements {
					dims := "-"
					if req.Dimensions != nil {
						dims = req.Dimensions.String()
					}
					mandatory := ""
					if req.Mandatory {
						mandatory = " [mandatory]"
					}
					fmt.Printf("  %-18s formats=%v maxKB=%d dims=%s%s\n", req.Type, req.Formats, req.MaxSizeKB, dims, mandatory)
				}
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	var (
		examID     string
		schemaPath string
	)
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate files against an exam's requirements",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examSchema, err := resolveSchema(examID, schemaPath)
			if err != nil {
				return err
			}
			failures := 0
			for _, path := range args {
				file, err := loadFile(path)
				if err != nil {
					return err
				}
				req, ok := matcher.Match(file.Name, examSchema)
				if !ok {
					failures++
					fmt.Printf("%s: UNMATCHED (no requirement matches the filename)\n", file.Name)
					continue
				}
				verdict := validate.Validate(file, req)
				if verdict.Valid {
					fmt.Printf("%s: OK (%s)\n", file.Name, req.Type)
					continue
				}
				failures++
				fmt.Printf("%s: INVALID (%s)\n", file.Name, req.Type)
				for _, v := range verdict.Violations {
					fmt.Printf("  - %s: %s\n", v.Kind, v.Message)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d files not compliant", failures, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&examID, "exam", "e", "", "Exam profile id (see 'exampack exams')")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Path to a custom exam schema JSON file (overrides --exam)")
	return cmd
}

func newPackCmd() *cobra.Command {
	var (
		examID     string
		schemaPath string
		rollNumber string
		output     string
		policy     string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "pack [files...]",
		Short: "Transform files into compliance and pack them into a zip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examSchema, err := resolveSchema(examID, schemaPath)
			if err != nil {
				return err
			}
			archPolicy, err := archive.ParsePolicy(policy)
			if err != nil {
				return err
			}
			files := make([]*model.UploadedFile, 0, len(args))
			for _, path := range args {
				file, err := loadFile(path)
				if err != nil {
					return err
				}
				files = append(files, file)
			}

			logger := logging.New("exampack", "warn", true)
			auditor := audit.New(nil, logger)
			runner := pipeline.New(transform.NewPipeline(transform.Options{}), auditor, workers, 0, logger)
			results := runner.Run(cmd.Context(), examSchema, files)

			for _, r := range results {
				switch {
				case r.Requirement == nil:
					fmt.Printf("%s: unmatched\n", r.Input.Name)
				case r.Transform == nil:
					fmt.Printf("%s: already compliant (%s)\n", r.Input.Name, r.Requirement.Type)
				case r.Transform.Fallback:
					fmt.Printf("%s: could not be fixed, passing original through\n", r.Input.Name)
				default:
					fmt.Printf("%s -> %s:\n", r.Input.Name, r.Output.Name)
					for _, step := range r.Transform.Steps {
						fmt.Printf("  - %s\n", step)
					}
				}
			}

			data, manifest, err := archive.Build(pipeline.Items(results), examSchema, archive.Options{
				RollNumber: rollNumber,
				Policy:     archPolicy,
			})
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("%s_%s.zip", examSchema.ID, rollNumber)
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			fmt.Printf("wrote %s (%d documents, %d KB uncompressed, hash %s)\n",
				output, len(manifest.Entries), (manifest.TotalBytes+1023)/1024, manifest.ContentHash[:12])
			return nil
		},
	}
	cmd.Flags().StringVarP(&examID, "exam", "e", "", "Exam profile id (see 'exampack exams')")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Path to a custom exam schema JSON file (overrides --exam)")
	cmd.Flags().StringVarP(&rollNumber, "roll", "r", "", "Roll number / applicant identifier")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output zip path (default <exam>_<roll>.zip)")
	cmd.Flags().StringVar(&policy, "policy", "strict", "Unmatched-file policy: strict or lenient")
	cmd.Flags().IntVar(&workers, "workers", 4, "Parallel transform workers")
	_ = cmd.MarkFlagRequired("roll")
	return cmd
}

// resolveSchema picks the exam schema for a CLI invocation: a --schema file
// wins over a built-in --exam profile, and one of the two must be given.
func resolveSchema(examID, schemaPath string) (*schema.ExamSchema, error) {
	if schemaPath != "" {
		return schema.LoadFile(schemaPath)
	}
	if examID == "" {
		return nil, fmt.Errorf("one of --exam or --schema is required")
	}
	return schema.Lookup(examID)
}

// loadFile reads a document from disk, deriving the MIME type from the
// extension with a content sniff as fallback.
func loadFile(path string) (*model.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	mime := mimeFromExt(filepath.Ext(path))
	if mime == "" {
		sniff := data
		if len(sniff) > 512 {
			sniff = sniff[:512]
		}
		mime = http.DetectContentType(sniff)
	}
	return &model.UploadedFile{Name: filepath.Base(path), MIME: mime, Data: data}, nil
}

func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	}
	return ""
}
