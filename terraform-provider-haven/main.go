package main

import (
	"context"
	"flag"
	"log"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"

	"github.com/haven-project/haven/terraform-provider-haven/internal/provider"
)

func main() {
	var debug bool

	flag.BoolVar(&debug, "debug", false, "start plugin in debug mode")

	flag.Parse()

	err := providerserver.Serve(
		context.Background(),
		provider.New,
		providerserver.ServeOpts{
			Address: "registry.terraform.io/haven-project/haven",
			Debug:   debug,
		},
	)
	if err != nil {
		log.Fatal(err)
	}
}
