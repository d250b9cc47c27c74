package inkyfs

import (
	"errors"
	"io"
	"os"
	"reflect"
	"syscall"
	"testing"

	"github.com/golang/mock/gomock"
)

// fileTestFields is essentially a copy of the File struct used to fill the
// unit under test in test cases.
type fileTestFields struct {
	path         string
	isDirectory  bool
	isReadOnly   bool
	isHidden     bool
	isSystem     bool
	writable     bool
	appendMode   bool
	firstCluster fatEntry
	fileSize     uint32
	offset       int64
}

func buildTestFile(fs fatFileFs, fields fileTestFields) *File {
	return &File{
		fs:           fs,
		path:         fields.path,
		isDirectory:  fields.isDirectory,
		isReadOnly:   fields.isReadOnly,
		isHidden:     fields.isHidden,
		isSystem:     fields.isSystem,
		writable:     fields.writable,
		appendMode:   fields.appendMode,
		firstCluster: fields.firstCluster,
		header:       EntryHeader{FileSize: fields.fileSize},
		offset:       fields.offset,
	}
}

// fileTestsError is just an error used in tests for File.
var fileTestsError = errors.New("a super error")

func TestFile_Close(t *testing.T) {
	t.Run("clean close only syncs", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().sync().Return(nil)

		f := buildTestFile(mockFs, fileTestFields{path: "/foo.txt", fileSize: 11})
		if err := f.Close(); err != nil {
			t.Errorf("File.Close() error = %v", err)
		}
		mockCtrl.Finish()
	})

	t.Run("dirty close flushes the entry", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().flushEntry(gomock.Any(), gomock.Any()).Return(nil)
		mockFs.EXPECT().sync().Return(nil)

		f := buildTestFile(mockFs, fileTestFields{path: "/foo.txt", writable: true, fileSize: 11})
		f.dirty = true
		if err := f.Close(); err != nil {
			t.Errorf("File.Close() error = %v", err)
		}
		mockCtrl.Finish()
	})

	t.Run("second close is a no-op", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().sync().Return(nil)

		f := buildTestFile(mockFs, fileTestFields{path: "/foo.txt"})
		if err := f.Close(); err != nil {
			t.Fatalf("File.Close() error = %v", err)
		}
		if err := f.Close(); err != nil {
			t.Errorf("second File.Close() error = %v", err)
		}
		mockCtrl.Finish()
	})

	t.Run("operations after close fail", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().sync().Return(nil)

		f := buildTestFile(mockFs, fileTestFields{path: "/foo.txt", writable: true, fileSize: 11})
		if err := f.Close(); err != nil {
			t.Fatalf("File.Close() error = %v", err)
		}
		if _, err := f.Read(make([]byte, 1)); !errors.Is(err, ErrFileClosed) {
			t.Errorf("File.Read() after close error = %v, want %v", err, ErrFileClosed)
		}
		if _, err := f.Write([]byte{1}); !errors.Is(err, ErrFileClosed) {
			t.Errorf("File.Write() after close error = %v, want %v", err, ErrFileClosed)
		}
		if _, err := f.Seek(0, io.SeekStart); !errors.Is(err, ErrFileClosed) {
			t.Errorf("File.Seek() after close error = %v, want %v", err, ErrFileClosed)
		}
		mockCtrl.Finish()
	})
}

func TestFile_Read(t *testing.T) {
	type args struct {
		p []byte
	}
	type mock struct {
		readAtResult []byte
		readAtError  error
	}
	tests := []struct {
		name     string
		mockData mock
		fields   fileTestFields
		args     args
		wantN    int
		wantErr  error
	}{
		{
			name: "simple file",
			mockData: mock{
				readAtResult: []byte("Hello World"),
				readAtError:  nil,
			},
			fields: fileTestFields{fileSize: 11},
			args:   args{p: make([]byte, 11)},
			wantN:  11,
		},
		{
			name: "simple file with offset",
			mockData: mock{
				readAtResult: []byte(" World"),
				readAtError:  nil,
			},
			fields: fileTestFields{fileSize: 11, offset: 5},
			args:   args{p: make([]byte, 6)},
			wantN:  6,
		},
		{
			name: "error while reading",
			mockData: mock{
				readAtResult: []byte{'H'}, // Simulate error after some bytes are already read.
				readAtError:  fileTestsError,
			},
			fields:  fileTestFields{fileSize: 11},
			args:    args{p: make([]byte, 11)},
			wantN:   1,
			wantErr: fileTestsError,
		},
		{
			name: "file smaller than buffer",
			mockData: mock{
				readAtResult: []byte("Hello World"),
				readAtError:  io.EOF,
			},
			fields:  fileTestFields{fileSize: 11},
			args:    args{p: make([]byte, 20)},
			wantN:   11,
			wantErr: io.EOF,
		},
		{
			name:    "read at the end of the file",
			fields:  fileTestFields{fileSize: 11, offset: 11},
			args:    args{p: make([]byte, 4)},
			wantN:   0,
			wantErr: io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			mockFs := NewMockfatFileFs(mockCtrl)
			mockFs.EXPECT().
				readFileAt(tt.fields.firstCluster, int64(tt.fields.fileSize), tt.fields.offset, int64(len(tt.args.p))).
				MaxTimes(1).
				Return(tt.mockData.readAtResult, tt.mockData.readAtError)

			f := buildTestFile(mockFs, tt.fields)

			gotN, err := f.Read(tt.args.p)

			mockCtrl.Finish()

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.Read() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotN != tt.wantN {
				t.Errorf("File.Read() = %v, want %v", gotN, tt.wantN)
			}
		})
	}
}

func TestFile_ReadAt(t *testing.T) {
	type args struct {
		p   []byte
		off int64
	}
	type mock struct {
		readAtResult []byte
		readAtError  error
	}
	tests := []struct {
		name     string
		mockData mock
		fields   fileTestFields
		args     args
		wantN    int
		wantErr  error
	}{
		{
			name: "read in the middle",
			mockData: mock{
				readAtResult: []byte("World"),
			},
			fields: fileTestFields{fileSize: 11},
			args:   args{p: make([]byte, 5), off: 6},
			wantN:  5,
		},
		{
			name:    "read past the end",
			fields:  fileTestFields{fileSize: 11},
			args:    args{p: make([]byte, 5), off: 11},
			wantN:   0,
			wantErr: io.EOF,
		},
		{
			name: "short read reports an error",
			mockData: mock{
				readAtResult: []byte("ld"),
			},
			fields:  fileTestFields{fileSize: 11},
			args:    args{p: make([]byte, 5), off: 9},
			wantN:   2,
			wantErr: io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			mockFs := NewMockfatFileFs(mockCtrl)
			mockFs.EXPECT().
				readFileAt(tt.fields.firstCluster, int64(tt.fields.fileSize), tt.args.off, int64(len(tt.args.p))).
				MaxTimes(1).
				Return(tt.mockData.readAtResult, tt.mockData.readAtError)

			f := buildTestFile(mockFs, tt.fields)

			gotN, err := f.ReadAt(tt.args.p, tt.args.off)

			mockCtrl.Finish()

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.ReadAt() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotN != tt.wantN {
				t.Errorf("File.ReadAt() = %v, want %v", gotN, tt.wantN)
			}
		})
	}
}

func TestFile_Seek(t *testing.T) {
	type args struct {
		offset int64
		whence int
	}
	tests := []struct {
		name    string
		fields  fileTestFields
		args    args
		want    int64
		wantErr error
	}{
		{
			name:   "seek from start",
			fields: fileTestFields{fileSize: 11},
			args:   args{offset: 5, whence: io.SeekStart},
			want:   5,
		},
		{
			name:   "seek from current",
			fields: fileTestFields{fileSize: 11, offset: 4},
			args:   args{offset: 3, whence: io.SeekCurrent},
			want:   7,
		},
		{
			name:   "seek from end",
			fields: fileTestFields{fileSize: 11},
			args:   args{offset: -1, whence: io.SeekEnd},
			want:   10,
		},
		{
			name:    "invalid whence",
			fields:  fileTestFields{fileSize: 11},
			args:    args{offset: 0, whence: 42},
			wantErr: syscall.EINVAL,
		},
		{
			name:    "seek before the file",
			fields:  fileTestFields{fileSize: 11},
			args:    args{offset: -1, whence: io.SeekStart},
			wantErr: ErrSeekFile,
		},
		{
			name:    "seek past the end",
			fields:  fileTestFields{fileSize: 11},
			args:    args{offset: 12, whence: io.SeekStart},
			wantErr: ErrSeekFile,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildTestFile(nil, tt.fields)
			got, err := f.Seek(tt.args.offset, tt.args.whence)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.Seek() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && got != tt.want {
				t.Errorf("File.Seek() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFile_Write(t *testing.T) {
	t.Run("write to a read-only handle", func(t *testing.T) {
		f := buildTestFile(nil, fileTestFields{fileSize: 11})
		if _, err := f.Write([]byte("data")); !errors.Is(err, os.ErrPermission) {
			t.Errorf("File.Write() error = %v, want %v", err, os.ErrPermission)
		}
	})

	t.Run("write extends the file", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().
			writeFileAt(fatEntry(0), int64(0), int64(0), []byte("hello")).
			Return(fatEntry(3), int64(5), 5, nil)

		f := buildTestFile(mockFs, fileTestFields{writable: true})
		n, err := f.Write([]byte("hello"))

		mockCtrl.Finish()

		if err != nil {
			t.Fatalf("File.Write() error = %v", err)
		}
		if n != 5 {
			t.Errorf("File.Write() = %v, want 5", n)
		}
		if f.firstCluster != 3 {
			t.Errorf("File.Write() firstCluster = %v, want 3", f.firstCluster)
		}
		if f.header.FileSize != 5 {
			t.Errorf("File.Write() FileSize = %v, want 5", f.header.FileSize)
		}
		if f.offset != 5 {
			t.Errorf("File.Write() offset = %v, want 5", f.offset)
		}
		if !f.dirty {
			t.Error("File.Write() did not mark the handle dirty")
		}
	})

	t.Run("append mode writes at the end", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().
			writeFileAt(fatEntry(3), int64(10), int64(10), []byte("!")).
			Return(fatEntry(3), int64(11), 1, nil)

		f := buildTestFile(mockFs, fileTestFields{
			writable:     true,
			appendMode:   true,
			firstCluster: 3,
			fileSize:     10,
		})
		if _, err := f.Write([]byte("!")); err != nil {
			t.Fatalf("File.Write() error = %v", err)
		}
		mockCtrl.Finish()
		if f.offset != 11 {
			t.Errorf("File.Write() offset = %v, want 11", f.offset)
		}
	})

	t.Run("failed write reports the error", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().
			writeFileAt(fatEntry(3), int64(10), int64(0), []byte("data")).
			Return(fatEntry(3), int64(10), 2, fileTestsError)

		f := buildTestFile(mockFs, fileTestFields{
			writable:     true,
			firstCluster: 3,
			fileSize:     10,
		})
		n, err := f.Write([]byte("data"))
		mockCtrl.Finish()
		if !errors.Is(err, fileTestsError) || !errors.Is(err, ErrWriteFile) {
			t.Errorf("File.Write() error = %v, want %v wrapped in %v", err, fileTestsError, ErrWriteFile)
		}
		if n != 2 {
			t.Errorf("File.Write() = %v, want 2", n)
		}
	})
}

func TestFile_WriteAt(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockFs := NewMockfatFileFs(mockCtrl)
	mockFs.EXPECT().
		writeFileAt(fatEntry(3), int64(10), int64(4), []byte("data")).
		Return(fatEntry(3), int64(10), 4, nil)

	f := buildTestFile(mockFs, fileTestFields{
		writable:     true,
		firstCluster: 3,
		fileSize:     10,
	})
	n, err := f.WriteAt([]byte("data"), 4)
	mockCtrl.Finish()
	if err != nil {
		t.Fatalf("File.WriteAt() error = %v", err)
	}
	if n != 4 {
		t.Errorf("File.WriteAt() = %v, want 4", n)
	}
	if f.offset != 0 {
		t.Errorf("File.WriteAt() moved the offset to %v", f.offset)
	}
}

func TestFile_Truncate(t *testing.T) {
	t.Run("shrink releases clusters", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().
			truncateChain(fatEntry(3), int64(0)).
			Return(fatEntry(0), nil)

		f := buildTestFile(mockFs, fileTestFields{
			writable:     true,
			firstCluster: 3,
			fileSize:     10,
			offset:       8,
		})
		if err := f.Truncate(0); err != nil {
			t.Fatalf("File.Truncate() error = %v", err)
		}
		mockCtrl.Finish()
		if f.header.FileSize != 0 {
			t.Errorf("File.Truncate() FileSize = %v, want 0", f.header.FileSize)
		}
		if f.firstCluster != 0 {
			t.Errorf("File.Truncate() firstCluster = %v, want 0", f.firstCluster)
		}
		if f.offset != 0 {
			t.Errorf("File.Truncate() offset = %v, want 0", f.offset)
		}
	})

	t.Run("growing is not supported", func(t *testing.T) {
		f := buildTestFile(nil, fileTestFields{writable: true, fileSize: 10})
		if err := f.Truncate(20); err != nil {
			t.Errorf("File.Truncate() past the size error = %v", err)
		}
	})
}

func TestFile_Name(t *testing.T) {
	tests := []struct {
		name string
		file *File
		want string
	}{
		{
			name: "root",
			file: &File{path: "/"},
			want: "/",
		},
		{
			name: "long name",
			file: &File{path: "/docs/A Long Name.txt", longName: "A Long Name.txt"},
			want: "A Long Name.txt",
		},
		{
			name: "short name",
			file: &File{
				path:   "/FOO.TXT",
				header: EntryHeader{Name: [11]byte{'F', 'O', 'O', ' ', ' ', ' ', ' ', ' ', 'T', 'X', 'T'}},
			},
			want: "FOO.TXT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.file.Name(); got != tt.want {
				t.Errorf("File.Name() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFile_Readdir(t *testing.T) {
	someEntries := []ExtendedEntryHeader{
		{EntryHeader: EntryHeader{Name: [11]byte{'A', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}}},
		{EntryHeader: EntryHeader{Name: [11]byte{'B', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}}},
		{EntryHeader: EntryHeader{Name: [11]byte{'C', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}}},
	}

	t.Run("not a directory", func(t *testing.T) {
		f := buildTestFile(nil, fileTestFields{path: "/foo.txt"})
		if _, err := f.Readdir(-1); !errors.Is(err, syscall.ENOTDIR) {
			t.Errorf("File.Readdir() error = %v, want %v", err, syscall.ENOTDIR)
		}
	})

	t.Run("root uses readRoot", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().readRoot().Return(someEntries, nil)

		f := buildTestFile(mockFs, fileTestFields{path: "/", isDirectory: true})
		got, err := f.Readdir(-1)
		mockCtrl.Finish()
		if err != nil {
			t.Fatalf("File.Readdir() error = %v", err)
		}
		want := []string{"A", "B", "C"}
		if len(got) != len(want) {
			t.Fatalf("File.Readdir() returned %d entries, want %d", len(got), len(want))
		}
		for i := range got {
			if got[i].Name() != want[i] {
				t.Errorf("File.Readdir()[%d].Name() = %v, want %v", i, got[i].Name(), want[i])
			}
		}
	})

	t.Run("subdirectory uses readDir", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().readDir(fatEntry(5)).Return(someEntries[:2], nil)

		f := buildTestFile(mockFs, fileTestFields{
			path:         "/sub",
			isDirectory:  true,
			firstCluster: 5,
		})
		got, err := f.Readdir(-1)
		mockCtrl.Finish()
		if err != nil {
			t.Fatalf("File.Readdir() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("File.Readdir() returned %d entries, want 2", len(got))
		}
	})

	t.Run("count larger than directory returns io.EOF", func(t *testing.T) {
		mockCtrl := gomock.NewController(t)
		mockFs := NewMockfatFileFs(mockCtrl)
		mockFs.EXPECT().readDir(fatEntry(5)).Return(someEntries, nil)

		f := buildTestFile(mockFs, fileTestFields{
			path:         "/sub",
			isDirectory:  true,
			firstCluster: 5,
		})
		got, err := f.Readdir(5)
		mockCtrl.Finish()
		if err != io.EOF {
			t.Errorf("File.Readdir() error = %v, want io.EOF", err)
		}
		if len(got) != 3 {
			t.Errorf("File.Readdir() returned %d entries, want 3", len(got))
		}
	})
}

func TestFile_Readdirnames(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockFs := NewMockfatFileFs(mockCtrl)
	mockFs.EXPECT().readDir(fatEntry(5)).Return([]ExtendedEntryHeader{
		{ExtendedName: "first file.txt"},
		{EntryHeader: EntryHeader{Name: [11]byte{'B', ' ', ' ', ' ', ' ', ' ', ' ', ' ', 'T', 'X', 'T'}}},
	}, nil)

	f := buildTestFile(mockFs, fileTestFields{
		path:         "/sub",
		isDirectory:  true,
		firstCluster: 5,
	})
	got, err := f.Readdirnames(-1)
	mockCtrl.Finish()
	if err != nil {
		t.Fatalf("File.Readdirnames() error = %v", err)
	}
	want := []string{"first file.txt", "B.TXT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("File.Readdirnames() = %v, want %v", got, want)
	}
}

func TestFile_Stat(t *testing.T) {
	f := buildTestFile(nil, fileTestFields{path: "/foo.txt", fileSize: 42})
	f.header.Name = [11]byte{'F', 'O', 'O', ' ', ' ', ' ', ' ', ' ', 'T', 'X', 'T'}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("File.Stat() error = %v", err)
	}
	if info.Name() != "FOO.TXT" {
		t.Errorf("File.Stat().Name() = %v, want FOO.TXT", info.Name())
	}
	if info.Size() != 42 {
		t.Errorf("File.Stat().Size() = %v, want 42", info.Size())
	}
	if info.IsDir() {
		t.Error("File.Stat().IsDir() = true, want false")
	}
}

func TestFile_Sync(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockFs := NewMockfatFileFs(mockCtrl)
	mockFs.EXPECT().flushEntry(gomock.Any(), gomock.Any()).Return(nil)
	mockFs.EXPECT().sync().Return(nil)

	f := buildTestFile(mockFs, fileTestFields{path: "/foo.txt", writable: true, fileSize: 4})
	f.dirty = true
	if err := f.Sync(); err != nil {
		t.Fatalf("File.Sync() error = %v", err)
	}
	mockCtrl.Finish()
	if f.dirty {
		t.Error("File.Sync() left the handle dirty")
	}
}

func TestFile_WriteString(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockFs := NewMockfatFileFs(mockCtrl)
	mockFs.EXPECT().
		writeFileAt(fatEntry(0), int64(0), int64(0), []byte("hello")).
		Return(fatEntry(4), int64(5), 5, nil)

	f := buildTestFile(mockFs, fileTestFields{writable: true})
	n, err := f.WriteString("hello")
	mockCtrl.Finish()
	if err != nil {
		t.Fatalf("File.WriteString() error = %v", err)
	}
	if n != 5 {
		t.Errorf("File.WriteString() = %v, want 5", n)
	}
}
