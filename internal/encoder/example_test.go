package encoder_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/pkg/frame"
)

func exampleRecords() []frame.Record {
	return []frame.Record{
		{SessionID: "9f1c", Kind: frame.KindZSL, Name: "ZSL_1000", Timestamp: 1000, Format: "JPEG", Image: []byte{0xff, 0xd8}},
		{SessionID: "9f1c", Kind: frame.KindZSL, Name: "ZSL_1033", Timestamp: 1033, Format: "JPEG", Image: []byte{0xff, 0xd8}},
	}
}

func Example_parquetEncoder() {
	dir, _ := os.MkdirTemp("", "parquet-example")
	defer os.RemoveAll(dir)

	enc := encoder.NewParquetEncoder("snappy")
	stats, err := enc.Encode(filepath.Join(dir, "captures"+enc.FileExtension()), exampleRecords())
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Printf("Encoded %d records\n", stats.RecordCount)
	// Output:
	// Encoded 2 records
}

func Example_encoderFactory() {
	format, err := encoder.ParseFormat("avro")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	enc, err := encoder.NewFactory(format, encoder.DefaultCompression(format)).CreateEncoder()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println(enc.Format(), enc.FileExtension())
	// Output:
	// avro .avro.gz
}
