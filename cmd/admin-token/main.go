// Command admin-token mints an operator JWT for the /admin API, signed with
// ADMIN_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sessionguard/platform/internal/auth"
	"github.com/sessionguard/platform/internal/infra"
)

func main() {
	_ = godotenv.Load()

	username := flag.String("user", "", "operator name recorded in the token")
	role := flag.String("role", auth.RoleViewer, "viewer, admin or superadmin")
	flag.Parse()

	if err := run(*username, *role); err != nil {
		fmt.Fprintln(os.Stderr, "admin-token:", err)
		os.Exit(1)
	}
}

func run(username, role string) error {
	if username == "" {
		return fmt.Errorf("-user is required")
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tok, err := auth.NewJWTManager(cfg.AdminJWTSecret, cfg.AdminJWTExpiry).GenerateToken(uuid.New(), username, role)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
