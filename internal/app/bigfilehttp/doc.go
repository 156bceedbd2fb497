// Package bigfilehttp реализует HTTP-интерфейс загрузки больших файлов по чанкам.
// Пути указаны относительно base_path (по умолчанию /api/big-file):
//   - GET  /chunk/{hash}/status: есть ли чанк в хранилище ({"exists": bool}).
//   - POST /chunk/{hash}: принимает чанк (multipart-поле file или сырое тело) и проверяет MD5.
//   - POST /merge: склеивает чанки из JSON-массива хешей, отвечает {"fileId": ...}.
//   - GET  /file/{id}: отдаёт объект как application/octet-stream.
//   - GET  /file/{id}/manifest: из каких чанков собран файл.
//   - GET  /health: состояние и ёмкость хранилища.
//   - POST /admin/gc: удаляет брошенные временные объекты (ручной GC).
package bigfilehttp
