// atlas 的 external_schema 讀取此程式的輸出，產生資料表的 DDL
//
//	data "external_schema" "gorm" {
//	  program = ["go", "run", "./tools/atlas"]
//	}
package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"bazaar/models"
)

func main() {
	stmts, err := gormschema.New("postgres").Load(models.All()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}
	io.WriteString(os.Stdout, stmts)
}
