package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"basegen/pkg/ast"
	"basegen/pkg/compiler"
	"basegen/pkg/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose int

	cmd := &cobra.Command{
		Use:   "basegen",
		Short: "basegen compiles function documents to baseline code and runs them",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// glog only reads its level through the flag package, and
			// warns on every log line until that set has been parsed.
			_ = flag.CommandLine.Parse(nil)
			if verbose > 0 {
				flag.Lookup("v").Value.Set(strconv.Itoa(verbose))
			}
		},
	}

	cmd.PersistentFlags().IntVarP(
		&verbose, "verbose", "v", 0,
		"Enable verbose logging (e.g., v=2 traces stub cache hits)",
	)

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStubsCmd())

	return cmd
}

func loadFunction(path string) (*ast.FunctionLiteral, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ast.DecodeProgram(data)
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [files]",
		Short: "Report every construct that would make a function fall back",
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, arg := range args {
				fn, err := loadFunction(arg)
				if err != nil {
					return err
				}
				if err := (&compiler.SyntaxChecker{}).CheckAll(fn); err != nil {
					failed = true
					fmt.Printf("%s: %v\n", arg, err)
				} else {
					fmt.Printf("%s: ok\n", arg)
				}
			}
			if failed {
				return fmt.Errorf("some functions are not compilable")
			}
			return nil
		},
	}
}

func newCompileCmd() *cobra.Command {
	var disasm bool

	cmd := &cobra.Command{
		Use:   "compile [files]",
		Short: "Compile functions and print a summary or disassembly",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := compiler.NewContext()
			for _, arg := range args {
				fn, err := loadFunction(arg)
				if err != nil {
					return err
				}
				co, err := compiler.MakeCode(fn, cc)
				if err != nil {
					return err
				}
				if disasm {
					fmt.Print(co.Disassemble())
				} else {
					fmt.Printf("%s: %d instructions\n", arg, co.InstrCount())
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&disasm, "disasm", "d", false, "Print the generated code")

	return cmd
}

func newRunCmd() *cobra.Command {
	var disasm bool

	cmd := &cobra.Command{
		Use:   "run [file] [args]",
		Short: "Compile one function and execute it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := loadFunction(args[0])
			if err != nil {
				return err
			}
			co, err := compiler.MakeCode(fn, nil)
			if err != nil {
				return err
			}
			if disasm {
				fmt.Print(co.Disassemble())
			}

			cx := vm.NewContext()
			cx.RegisterFunc("print", func(_ *vm.Context, args []vm.Value) (vm.Value, error) {
				for i, a := range args {
					if i > 0 {
						fmt.Print(" ")
					}
					fmt.Print(a)
				}
				fmt.Println()
				return vm.Undefined(), nil
			})

			result, err := cx.Run(co, parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&disasm, "disasm", "d", false, "Print the generated code before running")

	return cmd
}

func newStubsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stubs [files]",
		Short: "Compile functions and print the stubs they share",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := compiler.NewContext()
			for _, arg := range args {
				fn, err := loadFunction(arg)
				if err != nil {
					return err
				}
				if _, err := compiler.MakeCode(fn, cc); err != nil {
					return err
				}
			}
			for _, co := range cc.Stubs.Codes() {
				fmt.Print(co.Disassemble())
			}
			return nil
		},
	}
}

// parseArgs maps command line arguments to machine values: numbers when
// they parse as such, strings otherwise.
func parseArgs(args []string) []vm.Value {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		if n, err := strconv.ParseFloat(a, 64); err == nil {
			out[i] = vm.Number(n)
		} else {
			out[i] = vm.String(a)
		}
	}
	return out
}
