package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/scenario"
)

const scenarioFileName = "scenario.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create configuration file",
	Long: `Initialize a new idlecrew configuration file.

By default, creates idlecrew.yaml in the current directory.
Use --global to create a global config at ~/.config/idlecrew/config.yaml
and --scenario to also write an example scenario.yaml next to it.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("global", false, "Create global config instead of project config")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing files without prompting")
	initCmd.Flags().Bool("scenario", false, "Also write an example scenario")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	global, _ := cmd.Flags().GetBool("global")
	force, _ := cmd.Flags().GetBool("force")
	withScenario, _ := cmd.Flags().GetBool("scenario")
	out := cmd.OutOrStdout()

	var configPath, configType string
	if global {
		configPath = config.GlobalConfigPath()
		configType = "global"
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		configPath = filepath.Join(cwd, config.ProjectConfigName)
		configType = "project"
	}

	wrote, err := writeStarter(cmd.InOrStdin(), out, configPath, []byte(config.DefaultYAML), force)
	if err != nil {
		return err
	}
	if wrote {
		fmt.Fprintf(out, "\n%s%sCreated %s config:%s %s\n", colorBold, colorGreen, configType, colorReset, configPath)
	}

	if withScenario {
		scenarioPath := filepath.Join(filepath.Dir(configPath), scenarioFileName)
		wrote, err := writeStarter(cmd.InOrStdin(), out, scenarioPath, scenario.Example, force)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(out, "%s%sCreated scenario:%s %s\n", colorBold, colorGreen, colorReset, scenarioPath)
		}
	}

	fmt.Fprintf(out, "\n%sNext steps:%s\n", colorCyan, colorReset)
	fmt.Fprintln(out, "  1. Edit the config to set your schedule and world")
	if withScenario {
		fmt.Fprintf(out, "  2. Run 'idlecrew load %s' to seed the board\n", scenarioFileName)
	} else {
		fmt.Fprintln(out, "  2. Add tasks and teams with 'idlecrew tasks add' and 'idlecrew teams create'")
	}
	fmt.Fprintln(out, "  3. Run 'idlecrew plan' to preview, then 'idlecrew run' or 'idlecrew daemon start'")
	fmt.Fprintln(out)
	return nil
}

// writeStarter writes content to path, asking before replacing an existing
// file unless force is set. It reports whether the file was written.
func writeStarter(in io.Reader, out io.Writer, path string, content []byte, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "%sAlready exists:%s %s\n", colorYellow, colorReset, path)
		fmt.Fprint(out, "Overwrite? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Skipped.")
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
