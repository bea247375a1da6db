package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/KyungWonPark/wmaze/internal/io"
)

func main() {
	if len(os.Args) != 2 {
		logrus.Fatal("usage: npy2csv <file.npy>")
	}
	fileName := os.Args[1]

	npyFile, err := io.NpytoMat64(fileName)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Info("Reading npy file complete")

	if err := io.Mat64toCSV(fileName+".csv", npyFile); err != nil {
		logrus.Fatal(err)
	}
}
